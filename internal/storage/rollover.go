package storage

import (
	"context"
	"log/slog"
	"time"

	"restockbot/backend/internal/models"
)

// RolloverResult summarizes a weekly rollover or an admin clear.
type RolloverResult struct {
	ReportsCleared   int
	CooldownsCleared int
	HistoryRotated   int
}

// Rollover backs up the document, clears every report and cooldown, and rotates each
// history entry's current week into its previous week. When runDate is non-empty it is
// recorded as the last cleanup date in the same write. Nothing is changed if the backup
// fails, and the in-memory document is rolled back if the save fails.
func (s *Store) Rollover(ctx context.Context, now time.Time, runDate string) (RolloverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return RolloverResult{}, err
	}
	snapshot, err := s.backupLocked(ctx)
	if err != nil {
		return RolloverResult{}, err
	}

	res := RolloverResult{
		ReportsCleared:   len(s.doc.Reports),
		CooldownsCleared: len(s.doc.Cooldowns),
		HistoryRotated:   len(s.doc.LocationHistory),
	}
	s.doc.Reports = []*models.Report{}
	s.doc.Cooldowns = []*models.Cooldown{}

	// Rollover runs on the last day of a week; rotated entries belong to the next one.
	thisWeek := s.WeekStart(now)
	nextWeek := thisWeek.AddDate(0, 0, 7)
	for _, h := range s.doc.LocationHistory {
		h.Advance(thisWeek)
		h.Rotate(nextWeek)
	}
	if runDate != "" {
		s.doc.Settings.LastCleanup = runDate
	}

	if err := s.saveLocked(ctx); err != nil {
		s.restoreLocked(snapshot)
		return RolloverResult{}, err
	}
	s.logger.Info("weekly rollover applied",
		slog.Int("reports_cleared", res.ReportsCleared),
		slog.Int("cooldowns_cleared", res.CooldownsCleared),
		slog.Int("history_rotated", res.HistoryRotated),
	)
	return res, nil
}

// ClearAll backs up the document and removes every report and cooldown. Location
// history is kept.
func (s *Store) ClearAll(ctx context.Context) (RolloverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return RolloverResult{}, err
	}
	snapshot, err := s.backupLocked(ctx)
	if err != nil {
		return RolloverResult{}, err
	}
	res := RolloverResult{
		ReportsCleared:   len(s.doc.Reports),
		CooldownsCleared: len(s.doc.Cooldowns),
	}
	s.doc.Reports = []*models.Report{}
	s.doc.Cooldowns = []*models.Cooldown{}
	if err := s.saveLocked(ctx); err != nil {
		s.restoreLocked(snapshot)
		return RolloverResult{}, err
	}
	return res, nil
}
