package models

import "time"

// CooldownKind tags the two kinds of cooldown that share the cooldowns collection.
type CooldownKind string

const (
	// CooldownLocation blocks every submitter for a location. Created on approval of a live sighting.
	CooldownLocation CooldownKind = "location"
	// CooldownSubmitter blocks one submitter for one location. Created on every submission.
	CooldownSubmitter CooldownKind = "submitter"
)

// Cooldown is a time-boxed restriction on reporting. SubmitterID is only set for
// CooldownSubmitter entries.
type Cooldown struct {
	Kind        CooldownKind `json:"kind"`
	LocationKey string       `json:"location_key"`
	SubmitterID string       `json:"submitter_id,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewLocationCooldown builds a location-wide cooldown lasting d from now.
func NewLocationCooldown(locationKey string, now time.Time, d time.Duration) *Cooldown {
	return &Cooldown{
		Kind:        CooldownLocation,
		LocationKey: locationKey,
		ExpiresAt:   now.Add(d),
		CreatedAt:   now,
	}
}

// NewSubmitterCooldown builds a per-submitter cooldown lasting d from now.
func NewSubmitterCooldown(locationKey, submitterID string, now time.Time, d time.Duration) *Cooldown {
	return &Cooldown{
		Kind:        CooldownSubmitter,
		LocationKey: locationKey,
		SubmitterID: submitterID,
		ExpiresAt:   now.Add(d),
		CreatedAt:   now,
	}
}

// Active reports whether the cooldown still blocks at now.
func (c *Cooldown) Active(now time.Time) bool { return c.ExpiresAt.After(now) }

// Remaining returns the time left before expiry, or zero once expired.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	if !c.Active(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
