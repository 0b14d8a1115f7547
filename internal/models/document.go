package models

// CurrentSchemaVersion is written into every saved document.
const CurrentSchemaVersion = 2

// Settings holds the scheduler's last-run dates (YYYY-MM-DD in the scheduler's zone).
type Settings struct {
	LastCleanup      string `json:"last_cleanup,omitempty"`
	LastWeeklyReport string `json:"last_weekly_report,omitempty"`
}

// Document is the full persisted state of the report store.
type Document struct {
	Version           int                 `json:"version"`
	Reports           []*Report           `json:"reports"`
	Cooldowns         []*Cooldown         `json:"cooldowns"`
	LocationHistory   []*LocationHistory  `json:"location_history"`
	DisabledReporters []*DisabledReporter `json:"disabled_reporters"`
	RoleSnapshots     []*RoleSnapshot     `json:"role_snapshots"`
	Settings          Settings            `json:"settings"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() *Document {
	return &Document{
		Version:           CurrentSchemaVersion,
		Reports:           []*Report{},
		Cooldowns:         []*Cooldown{},
		LocationHistory:   []*LocationHistory{},
		DisabledReporters: []*DisabledReporter{},
		RoleSnapshots:     []*RoleSnapshot{},
	}
}

// FindReport returns the report with id, or nil.
func (d *Document) FindReport(id string) *Report {
	for _, r := range d.Reports {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// PendingReportFor returns the pending report for a location, or nil.
func (d *Document) PendingReportFor(locationKey string) *Report {
	for _, r := range d.Reports {
		if r.LocationKey == locationKey && r.IsPending() {
			return r
		}
	}
	return nil
}

// History returns the history entry for a location, or nil.
func (d *Document) History(locationKey string) *LocationHistory {
	for _, h := range d.LocationHistory {
		if h.LocationKey == locationKey {
			return h
		}
	}
	return nil
}

// EnsureHistory returns the history entry for a location, creating it when missing.
func (d *Document) EnsureHistory(locationKey string) *LocationHistory {
	if h := d.History(locationKey); h != nil {
		return h
	}
	h := &LocationHistory{LocationKey: locationKey}
	d.LocationHistory = append(d.LocationHistory, h)
	return h
}

// DisabledReporter returns the moderation record for a submitter, or nil.
func (d *Document) DisabledReporter(submitterID string) *DisabledReporter {
	for _, r := range d.DisabledReporters {
		if r.SubmitterID == submitterID {
			return r
		}
	}
	return nil
}

// RemoveCooldowns deletes every cooldown for which match returns true and reports how
// many were removed.
func (d *Document) RemoveCooldowns(match func(*Cooldown) bool) int {
	kept := d.Cooldowns[:0]
	removed := 0
	for _, c := range d.Cooldowns {
		if match(c) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	d.Cooldowns = kept
	return removed
}

// HasHistory reports whether any location history has been accumulated.
func (d *Document) HasHistory() bool {
	return d != nil && len(d.LocationHistory) > 0
}
