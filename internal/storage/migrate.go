package storage

import (
	"time"

	"restockbot/backend/internal/models"
)

// migrate upgrades older record shapes in place and reports whether anything changed.
func migrate(doc *models.Document, weekStart func(time.Time) time.Time) bool {
	changed := doc.Version < models.CurrentSchemaVersion

	for _, h := range doc.LocationHistory {
		if h.LegacyLastRestock != nil {
			if h.CurrentWeek == nil {
				t := *h.LegacyLastRestock
				h.CurrentWeek = &t
			}
			h.LegacyLastRestock = nil
			changed = true
		}
		if h.WeekStart == nil && h.CurrentWeek != nil {
			ws := weekStart(*h.CurrentWeek)
			h.WeekStart = &ws
			changed = true
		}
	}

	for _, c := range doc.Cooldowns {
		if c.Kind != "" {
			continue
		}
		if c.SubmitterID == "" {
			c.Kind = models.CooldownLocation
		} else {
			c.Kind = models.CooldownSubmitter
		}
		changed = true
	}

	for _, r := range doc.Reports {
		if r.Origin == "" {
			r.Origin = models.OriginCommand
			changed = true
		}
	}

	if changed {
		doc.Version = models.CurrentSchemaVersion
	}
	return changed
}
