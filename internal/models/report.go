package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportKind describes when the sighted restock happened relative to the submission.
type ReportKind string

const (
	KindInProgress ReportKind = "in_progress"
	KindPast       ReportKind = "past"
	KindUpcoming   ReportKind = "upcoming"
)

// Valid reports whether k is one of the known kinds.
func (k ReportKind) Valid() bool {
	switch k {
	case KindInProgress, KindPast, KindUpcoming:
		return true
	}
	return false
}

// IsLive is true for sightings that trigger an alert and a location cooldown on approval.
func (k ReportKind) IsLive() bool { return k == KindInProgress }

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	StatusPending  ReportStatus = "pending"
	StatusApproved ReportStatus = "approved"
	StatusRejected ReportStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s ReportStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ReportOrigin records which front-end path created the report.
type ReportOrigin string

const (
	OriginCommand ReportOrigin = "command"
	OriginButton  ReportOrigin = "button"
)

// Report is one crowd-sourced restock sighting.
type Report struct {
	ID            string       `json:"id"`
	LocationKey   string       `json:"location_key"`
	Kind          ReportKind   `json:"kind"`
	OccurredAt    time.Time    `json:"occurred_at"`
	Note          string       `json:"note,omitempty"`
	SubmitterID   string       `json:"submitter_id"`
	SubmitterName string       `json:"submitter_name,omitempty"`
	Status        ReportStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	Origin        ReportOrigin `json:"origin,omitempty"`

	// Set once, when the report leaves pending.
	ReviewerID    string     `json:"reviewer_id,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ModeratorNote string     `json:"moderator_note,omitempty"`
}

// NewReportID returns a time-ordered identifier with a random suffix.
func NewReportID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IsPending is a convenience for Status == StatusPending.
func (r *Report) IsPending() bool { return r.Status == StatusPending }
