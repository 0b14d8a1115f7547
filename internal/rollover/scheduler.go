// Package rollover runs the weekly recap and cleanup. It polls on a coarse interval and
// relies on the last-run dates stored in the document, so a restart later on rollover
// day still performs each step exactly once.
package rollover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/storage"
)

const dateLayout = "2006-01-02"

// RecapSource builds the weekly recap.
type RecapSource interface {
	WeeklyRecap(ctx context.Context, now time.Time) ([]reports.RegionRecap, error)
}

// Schedule says when the steps fire: the recap at Hour on Weekday, the cleanup one hour
// later, both in Location.
type Schedule struct {
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
}

// Scheduler triggers the recap and cleanup steps.
type Scheduler struct {
	store     *storage.Store
	recaps    RecapSource
	publisher reports.RecapPublisher
	schedule  Schedule
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time

	mu sync.Mutex
}

// NewScheduler creates a Scheduler. publisher may be nil, in which case the recap step
// only records its run date.
func NewScheduler(store *storage.Store, recaps RecapSource, publisher reports.RecapPublisher, schedule Schedule, log *slog.Logger, rec metrics.Recorder) *Scheduler {
	if schedule.Location == nil {
		schedule.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Scheduler{
		store:     store,
		recaps:    recaps,
		publisher: publisher,
		schedule:  schedule,
		logger:    log,
		metrics:   rec,
		now:       time.Now,
	}
}

// SetClock overrides time.Now.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start checks once immediately and then every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("rollover scheduler started",
		slog.Duration("interval", interval),
		slog.String("weekday", s.schedule.Weekday.String()),
		slog.Int("hour", s.schedule.Hour),
	)

	// Catch up on a run missed while the process was down.
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("rollover check failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rollover scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("rollover check failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce fires whichever steps are due. A failed step is retried on the next check, and
// the cleanup waits until the day's recap has been published.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	local := now.In(s.schedule.Location)
	if local.Weekday() != s.schedule.Weekday || local.Hour() < s.schedule.Hour {
		return nil
	}
	today := local.Format(dateLayout)

	var settings models.Settings
	if err := s.store.View(ctx, func(doc *models.Document) { settings = doc.Settings }); err != nil {
		return err
	}

	var errs []error
	recapDone := settings.LastWeeklyReport == today
	if !recapDone {
		if err := s.runRecap(ctx, now, today); err != nil {
			errs = append(errs, fmt.Errorf("weekly recap: %w", err))
		} else {
			recapDone = true
		}
	}
	if local.Hour() >= s.schedule.Hour+1 && settings.LastCleanup != today {
		// Cleanup rotates the history the recap reads from.
		if !recapDone {
			s.logger.Warn("weekly cleanup deferred until the recap is published", slog.String("date", today))
		} else if err := s.runCleanup(ctx, now, today); err != nil {
			errs = append(errs, fmt.Errorf("weekly cleanup: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runRecap(ctx context.Context, now time.Time, today string) error {
	recaps, err := s.recaps.WeeklyRecap(ctx, now)
	if err != nil {
		s.metrics.RecordRollover("recap", false)
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRecap(ctx, recaps); err != nil {
			s.metrics.RecordRollover("recap", false)
			return err
		}
	}
	if err := s.store.Update(ctx, func(doc *models.Document) error {
		doc.Settings.LastWeeklyReport = today
		return nil
	}); err != nil {
		s.metrics.RecordRollover("recap", false)
		return err
	}

	s.metrics.RecordRollover("recap", true)
	s.logger.Info("weekly recap published",
		slog.String("date", today),
		slog.Int("regions", len(recaps)),
	)
	return nil
}

func (s *Scheduler) runCleanup(ctx context.Context, now time.Time, today string) error {
	res, err := s.store.Rollover(ctx, now, today)
	if err != nil {
		s.metrics.RecordRollover("cleanup", false)
		return err
	}
	s.metrics.RecordRollover("cleanup", true)
	s.logger.Info("weekly cleanup finished",
		slog.String("date", today),
		slog.Int("reports_cleared", res.ReportsCleared),
		slog.Int("cooldowns_cleared", res.CooldownsCleared),
	)
	return nil
}
