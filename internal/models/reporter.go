package models

import "time"

// DisabledReporter blocks a submitter from creating reports while Enabled is false.
// The record is kept after re-enabling so the moderation trail survives.
type DisabledReporter struct {
	SubmitterID string     `json:"submitter_id"`
	Enabled     bool       `json:"enabled"`
	Reason      string     `json:"reason"`
	DisabledBy  string     `json:"disabled_by"`
	DisabledAt  time.Time  `json:"disabled_at"`
	EnabledBy   string     `json:"enabled_by,omitempty"`
	EnabledAt   *time.Time `json:"enabled_at,omitempty"`
}

// Blocked reports whether the reporter is currently barred from submitting.
func (d *DisabledReporter) Blocked() bool { return !d.Enabled }

// RoleSnapshot is a saved role set for a user under moderation action.
type RoleSnapshot struct {
	UserID     string     `json:"user_id"`
	Roles      []string   `json:"roles"`
	SavedBy    string     `json:"saved_by"`
	SavedAt    time.Time  `json:"saved_at"`
	RestoredBy string     `json:"restored_by,omitempty"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`
}
