package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"restockbot/backend/internal/config"
	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/models"
)

// Decision is a moderator's verdict on a pending report.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// ParseDecision accepts "approve"/"approved" and "reject"/"rejected".
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "approve", "approved":
		return Approve, nil
	case "reject", "rejected":
		return Reject, nil
	}
	return "", &ValidationError{Field: "decision", Reason: "must be approve or reject"}
}

func (d Decision) status() models.ReportStatus {
	if d == Approve {
		return models.StatusApproved
	}
	return models.StatusRejected
}

// Resolution lists the side effects of a resolve call.
type Resolution struct {
	Report           models.Report
	HistoryUpdated   bool
	Cooldown         *models.Cooldown
	CooldownsRemoved int
	AlertSent        bool
}

var errNotInMemory = errors.New("report not in memory")

// Resolve moves a pending report to approved or rejected exactly once.
//
// The status change is saved on its own first; once that save succeeds, a retry gets
// *AlreadyResolvedError and no side effect runs twice. History, cooldown and alert
// effects follow. An alert failure is returned joined with ErrAlertNotDelivered
// alongside a non-nil Resolution; the decision itself stays committed.
func (s *Service) Resolve(ctx context.Context, reportID string, decision Decision, reviewerID, moderatorNote string) (*Resolution, error) {
	if decision != Approve && decision != Reject {
		return nil, &ValidationError{Field: "decision", Reason: "must be approve or reject"}
	}
	now := s.now()

	report, err := s.commitDecision(ctx, reportID, decision, reviewerID, moderatorNote, now)
	if errors.Is(err, errNotInMemory) {
		// Another process may have written the report; look at the freshest document.
		if lErr := s.Store.Load(ctx); lErr != nil {
			return nil, lErr
		}
		report, err = s.commitDecision(ctx, reportID, decision, reviewerID, moderatorNote, now)
		if errors.Is(err, errNotInMemory) {
			err = ErrReportNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	res := &Resolution{Report: report}
	log := s.logger.With(
		slog.String("report_id", report.ID),
		slog.String("location_key", report.LocationKey),
		slog.String("decision", string(decision)),
		slog.String("reviewer_id", reviewerID),
	)
	s.metrics.RecordResolution(string(report.Status))

	if err := s.applySideEffects(ctx, res, now); err != nil {
		log.Error("report resolved but side effects failed", slog.String("error", err.Error()))
		return res, fmt.Errorf("apply side effects of %s: %w", report.ID, err)
	}
	log.Info("report resolved",
		slog.Bool("history_updated", res.HistoryUpdated),
		slog.Bool("cooldown_created", res.Cooldown != nil),
		slog.Int("cooldowns_removed", res.CooldownsRemoved),
	)

	if decision != Approve || !report.Kind.IsLive() || s.Alerts == nil {
		return res, nil
	}
	if err := s.publishAlert(ctx, report, now); err != nil {
		log.Error("failed to publish alert", slog.String("error", err.Error()))
		logger.CaptureError(err, map[string]string{"component": "reports", "kind": "alert"})
		return res, errors.Join(ErrAlertNotDelivered, err)
	}
	res.AlertSent = true
	return res, nil
}

// commitDecision is the durability boundary: it flips the status and saves.
func (s *Service) commitDecision(ctx context.Context, reportID string, decision Decision, reviewerID, note string, now time.Time) (models.Report, error) {
	var out models.Report
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		r := doc.FindReport(reportID)
		if r == nil {
			return errNotInMemory
		}
		if !r.IsPending() {
			return &AlreadyResolvedError{Status: r.Status}
		}
		resolvedAt := now
		r.Status = decision.status()
		r.ReviewerID = reviewerID
		r.ResolvedAt = &resolvedAt
		r.ModeratorNote = note
		out = *r
		return nil
	})
	return out, err
}

func (s *Service) applySideEffects(ctx context.Context, res *Resolution, now time.Time) error {
	r := res.Report
	var (
		removed int
		updated bool
		created *models.Cooldown
	)
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		if r.Status == models.StatusRejected {
			removed = doc.RemoveCooldowns(func(c *models.Cooldown) bool {
				return c.Kind == models.CooldownSubmitter &&
					c.LocationKey == r.LocationKey &&
					c.SubmitterID == r.SubmitterID
			})
			return nil
		}

		doc.EnsureHistory(r.LocationKey).RecordRestock(r.OccurredAt, s.Store.WeekStart(now), r.Kind.IsLive())
		updated = true

		if r.Kind.IsLive() {
			c := models.NewLocationCooldown(r.LocationKey, now, config.LocationCooldown)
			doc.Cooldowns = append(doc.Cooldowns, c)
			cp := *c
			created = &cp
		}
		return nil
	})
	if err != nil {
		return err
	}
	res.CooldownsRemoved = removed
	res.HistoryUpdated = updated
	res.Cooldown = created
	return nil
}

func (s *Service) publishAlert(ctx context.Context, r models.Report, now time.Time) error {
	loc, ok := s.Catalog.Lookup(r.LocationKey)
	if !ok {
		loc = models.Location{Key: r.LocationKey, Name: r.LocationKey}
	}
	err := s.Alerts.PublishAlert(ctx, Alert{
		ReportID:      r.ID,
		Location:      loc,
		OccurredAt:    r.OccurredAt,
		ModeratorNote: r.ModeratorNote,
		ApprovedAt:    now,
	})
	s.metrics.RecordAlert(err == nil)
	return err
}
