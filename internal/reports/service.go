// Package reports implements the report lifecycle: gated submission, the one-way
// approval state machine and its side effects, history queries and admin overrides.
package reports

import (
	"log/slog"
	"time"

	"restockbot/backend/internal/config"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/session"
	"restockbot/backend/internal/storage"
)

// Service is the entry point used by the Telegram front-end, the HTTP API and the
// admin CLI.
type Service struct {
	Store    *storage.Store
	Catalog  *models.Catalog
	Sessions session.Cache
	Alerts   AlertPublisher

	logger            *slog.Logger
	metrics           metrics.Recorder
	now               func() time.Time
	location          *time.Location
	submitterCooldown time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSubmitterCooldown sets how long a submitter waits before reporting the same
// location again.
func WithSubmitterCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitterCooldown = d
		}
	}
}

// WithTimezone sets the zone used for calendar-day checks on submitted dates.
func WithTimezone(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewService wires the lifecycle engine. alerts and sessions may be nil.
func NewService(store *storage.Store, catalog *models.Catalog, sessions session.Cache, alerts AlertPublisher, log *slog.Logger, rec metrics.Recorder, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	s := &Service{
		Store:             store,
		Catalog:           catalog,
		Sessions:          sessions,
		Alerts:            alerts,
		logger:            log,
		metrics:           rec,
		now:               time.Now,
		location:          time.UTC,
		submitterCooldown: config.DefaultSubmitterCooldown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) startOfDay(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}
