// Package session keeps partially assembled reports between front-end round trips.
// Entries live for a fixed TTL counted from creation and are visible to their owner only.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"restockbot/backend/internal/models"
)

// ErrNotFound covers unknown, expired and foreign tokens alike.
var ErrNotFound = errors.New("session not found or expired")

// Draft holds the report fields collected so far. Zero values mean "not chosen yet".
type Draft struct {
	Kind          models.ReportKind   `json:"kind,omitempty"`
	Region        string              `json:"region,omitempty"`
	LocationKey   string              `json:"location_key,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at,omitempty"`
	Note          string              `json:"note,omitempty"`
	SubmitterName string              `json:"submitter_name,omitempty"`
	Origin        models.ReportOrigin `json:"origin,omitempty"`
}

// Merge returns d with every non-zero field of patch applied.
func (d Draft) Merge(patch Draft) Draft {
	if patch.Kind != "" {
		d.Kind = patch.Kind
	}
	if patch.Region != "" {
		d.Region = patch.Region
	}
	if patch.LocationKey != "" {
		d.LocationKey = patch.LocationKey
	}
	if !patch.OccurredAt.IsZero() {
		d.OccurredAt = patch.OccurredAt
	}
	if patch.Note != "" {
		d.Note = patch.Note
	}
	if patch.SubmitterName != "" {
		d.SubmitterName = patch.SubmitterName
	}
	if patch.Origin != "" {
		d.Origin = patch.Origin
	}
	return d
}

// Entry is one stored session.
type Entry struct {
	Token     string    `json:"token"`
	OwnerID   string    `json:"owner_id"`
	Draft     Draft     `json:"draft"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the entry is older than ttl at now.
func (e *Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// Cache is the session store used by the front-end.
type Cache interface {
	// Create stores draft for ownerID and returns a new unguessable token.
	Create(ctx context.Context, ownerID string, draft Draft) (string, error)
	// Get returns the draft, or ErrNotFound when the token is unknown, expired or owned
	// by someone else.
	Get(ctx context.Context, token, requesterID string) (Draft, error)
	// Update merges patch into the draft without extending its lifetime.
	Update(ctx context.Context, token, requesterID string, patch Draft) (Draft, error)
	// Discard removes the session. It returns ErrNotFound, and removes nothing, when the
	// token is unknown, expired or owned by someone else.
	Discard(ctx context.Context, token, requesterID string) error
}

// NewToken returns a time-ordered random token.
func NewToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
