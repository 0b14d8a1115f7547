// Package cooldown decides whether a submitter may create a report for a location.
// It only reads the document; creating cooldowns is left to the caller.
package cooldown

import (
	"math"
	"sort"
	"time"

	"restockbot/backend/internal/models"
)

// Reason identifies why a submission was denied.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonDisabled          Reason = "disabled"
	ReasonPending           Reason = "pending"
	ReasonLocationCooldown  Reason = "location_cooldown"
	ReasonSubmitterCooldown Reason = "submitter_cooldown"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// DaysLeft is set for cooldown denials.
	DaysLeft int
	// Detail is the disable reason, or the id of the pending report.
	Detail string
}

// Check evaluates the gate rules in order; the first match wins.
func Check(doc *models.Document, submitterID, locationKey string, now time.Time) Decision {
	// 1. Disabled reporter
	if r := doc.DisabledReporter(submitterID); r != nil && r.Blocked() {
		return Decision{Reason: ReasonDisabled, Detail: r.Reason}
	}

	// 2. Pending report for the location, whoever submitted it
	if p := doc.PendingReportFor(locationKey); p != nil {
		return Decision{Reason: ReasonPending, Detail: p.ID}
	}

	// 3. Location-wide cooldown
	if c := longest(doc.Cooldowns, now, func(c *models.Cooldown) bool {
		return c.Kind == models.CooldownLocation && c.LocationKey == locationKey
	}); c != nil {
		return Decision{Reason: ReasonLocationCooldown, DaysLeft: DaysLeft(c.Remaining(now))}
	}

	// 4. Submitter cooldown for this location
	if c := longest(doc.Cooldowns, now, func(c *models.Cooldown) bool {
		return c.Kind == models.CooldownSubmitter && c.LocationKey == locationKey && c.SubmitterID == submitterID
	}); c != nil {
		return Decision{Reason: ReasonSubmitterCooldown, DaysLeft: DaysLeft(c.Remaining(now))}
	}

	return Decision{Allowed: true}
}

// longest returns the active matching cooldown with the latest expiry.
func longest(cooldowns []*models.Cooldown, now time.Time, match func(*models.Cooldown) bool) *models.Cooldown {
	var found *models.Cooldown
	for _, c := range cooldowns {
		if !match(c) || !c.Active(now) {
			continue
		}
		if found == nil || c.ExpiresAt.After(found.ExpiresAt) {
			found = c
		}
	}
	return found
}

// DaysLeft rounds a remaining duration up to whole days, never below one.
func DaysLeft(d time.Duration) int {
	days := int(math.Ceil(d.Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// ActiveCooldowns lists the unexpired cooldowns for a location, soonest expiry first.
// An empty locationKey lists every active cooldown.
func ActiveCooldowns(doc *models.Document, locationKey string, now time.Time) []models.Cooldown {
	out := []models.Cooldown{}
	for _, c := range doc.Cooldowns {
		if !c.Active(now) {
			continue
		}
		if locationKey != "" && c.LocationKey != locationKey {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}
