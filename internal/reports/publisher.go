package reports

import (
	"context"
	"errors"
	"time"

	"restockbot/backend/internal/models"
)

// Alert is the payload published when a live sighting is approved.
type Alert struct {
	ReportID      string          `json:"report_id"`
	Location      models.Location `json:"location"`
	OccurredAt    time.Time       `json:"occurred_at"`
	ModeratorNote string          `json:"moderator_note,omitempty"`
	ApprovedAt    time.Time       `json:"approved_at"`
}

// AlertPublisher delivers approved live sightings.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert Alert) error
}

// RecapEntry is one restocked location in a weekly recap.
type RecapEntry struct {
	Location models.Location `json:"location"`
	At       time.Time       `json:"at"`
}

// RegionRecap summarizes one region's week.
type RegionRecap struct {
	Region       string            `json:"region"`
	WeekStart    time.Time         `json:"week_start"`
	Restocked    []RecapEntry      `json:"restocked"`
	NotRestocked []models.Location `json:"not_restocked"`
}

// RecapPublisher delivers the weekly recap.
type RecapPublisher interface {
	PublishRecap(ctx context.Context, recaps []RegionRecap) error
}

// MultiPublisher fans alerts out to several sinks. Every sink is tried; the joined
// error of the failing ones is returned.
type MultiPublisher []AlertPublisher

func (m MultiPublisher) PublishAlert(ctx context.Context, alert Alert) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
