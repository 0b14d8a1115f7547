package reports

import (
	"context"
	"log/slog"
	"strings"

	"restockbot/backend/internal/cooldown"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/storage"
)

// AdminClearAll removes every report and cooldown after taking a backup. History is kept.
func (s *Service) AdminClearAll(ctx context.Context, actor string) (storage.RolloverResult, error) {
	res, err := s.Store.ClearAll(ctx)
	if err != nil {
		return res, err
	}
	s.logger.Warn("all reports and cooldowns cleared",
		slog.String("actor", actor),
		slog.Int("reports_cleared", res.ReportsCleared),
		slog.Int("cooldowns_cleared", res.CooldownsCleared),
	)
	return res, nil
}

// AdminRemoveCooldown deletes every cooldown for a location, location-wide and
// per-submitter alike, and returns how many were removed.
func (s *Service) AdminRemoveCooldown(ctx context.Context, locationKey, actor string) (int, error) {
	var removed int
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		removed = doc.RemoveCooldowns(func(c *models.Cooldown) bool {
			return c.LocationKey == locationKey
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("cooldowns removed",
		slog.String("actor", actor),
		slog.String("location_key", locationKey),
		slog.Int("removed", removed),
	)
	return removed, nil
}

// ActiveCooldowns lists unexpired cooldowns for a location, or all when locationKey is empty.
func (s *Service) ActiveCooldowns(ctx context.Context, locationKey string) ([]models.Cooldown, error) {
	var out []models.Cooldown
	err := s.Store.View(ctx, func(doc *models.Document) {
		out = cooldown.ActiveCooldowns(doc, locationKey, s.now())
	})
	return out, err
}

// AdminDisableReporter blocks a submitter. Disabling an already disabled reporter
// updates the reason and actor.
func (s *Service) AdminDisableReporter(ctx context.Context, submitterID, reason, actor string) error {
	submitterID = strings.TrimSpace(submitterID)
	if submitterID == "" {
		return &ValidationError{Field: "reporter", Reason: "missing"}
	}
	now := s.now()
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		rec := doc.DisabledReporter(submitterID)
		if rec == nil {
			rec = &models.DisabledReporter{SubmitterID: submitterID}
			doc.DisabledReporters = append(doc.DisabledReporters, rec)
		}
		rec.Enabled = false
		rec.Reason = reason
		rec.DisabledBy = actor
		rec.DisabledAt = now
		rec.EnabledBy = ""
		rec.EnabledAt = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Warn("reporter disabled",
		slog.String("submitter_id", submitterID),
		slog.String("actor", actor),
		slog.String("reason", reason),
	)
	return nil
}

// AdminEnableReporter lifts a block. The record is kept with the re-enable actor and time.
func (s *Service) AdminEnableReporter(ctx context.Context, submitterID, actor string) error {
	now := s.now()
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		rec := doc.DisabledReporter(submitterID)
		if rec == nil || !rec.Blocked() {
			return ErrReporterNotDisabled
		}
		t := now
		rec.Enabled = true
		rec.EnabledBy = actor
		rec.EnabledAt = &t
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("reporter enabled",
		slog.String("submitter_id", submitterID),
		slog.String("actor", actor),
	)
	return nil
}
