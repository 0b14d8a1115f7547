package reports

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"restockbot/backend/internal/config"
	"restockbot/backend/internal/cooldown"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/session"
)

// Submission is a fully assembled report request.
type Submission struct {
	LocationKey   string
	Kind          models.ReportKind
	OccurredAt    time.Time
	Note          string
	SubmitterID   string
	SubmitterName string
	Origin        models.ReportOrigin
}

// FromDraft builds a submission from a finished session draft.
func FromDraft(submitterID string, d session.Draft) Submission {
	return Submission{
		LocationKey:   d.LocationKey,
		Kind:          d.Kind,
		OccurredAt:    d.OccurredAt,
		Note:          d.Note,
		SubmitterID:   submitterID,
		SubmitterName: d.SubmitterName,
		Origin:        d.Origin,
	}
}

// Submit validates sub, consults the cooldown gate and persists a pending report
// together with the submitter's cooldown for that location.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Report, error) {
	now := s.now()
	if err := s.validate(&sub, now); err != nil {
		s.metrics.RecordSubmission("invalid")
		return nil, err
	}

	var created models.Report
	err := s.Store.Update(ctx, func(doc *models.Document) error {
		decision := cooldown.Check(doc, sub.SubmitterID, sub.LocationKey, now)
		if !decision.Allowed {
			return &DeniedError{Reason: decision.Reason, DaysLeft: decision.DaysLeft, Detail: decision.Detail}
		}

		report := &models.Report{
			ID:            models.NewReportID(),
			LocationKey:   sub.LocationKey,
			Kind:          sub.Kind,
			OccurredAt:    sub.OccurredAt,
			Note:          sub.Note,
			SubmitterID:   sub.SubmitterID,
			SubmitterName: sub.SubmitterName,
			Status:        models.StatusPending,
			CreatedAt:     now,
			Origin:        sub.Origin,
		}
		doc.Reports = append(doc.Reports, report)
		doc.Cooldowns = append(doc.Cooldowns,
			models.NewSubmitterCooldown(sub.LocationKey, sub.SubmitterID, now, s.submitterCooldown))
		created = *report
		return nil
	})

	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		s.metrics.RecordSubmission("denied")
		s.metrics.RecordDenial(string(denied.Reason))
		s.logger.Info("submission denied",
			slog.String("submitter_id", sub.SubmitterID),
			slog.String("location_key", sub.LocationKey),
			slog.String("reason", string(denied.Reason)),
		)
		return nil, err
	case err != nil:
		s.metrics.RecordSubmission("error")
		s.logger.Error("failed to store submission",
			slog.String("location_key", sub.LocationKey),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordSubmission("accepted")
	s.logger.Info("report submitted",
		slog.String("report_id", created.ID),
		slog.String("location_key", created.LocationKey),
		slog.String("kind", string(created.Kind)),
		slog.String("submitter_id", created.SubmitterID),
	)
	return &created, nil
}

// SubmitSession submits the draft held under token. The session is discarded once the
// submission is accepted or denied; it is kept on validation errors so the owner can
// correct the draft.
func (s *Service) SubmitSession(ctx context.Context, token, requesterID string) (*models.Report, error) {
	if s.Sessions == nil {
		return nil, session.ErrNotFound
	}
	draft, err := s.Sessions.Get(ctx, token, requesterID)
	if err != nil {
		return nil, err
	}

	report, err := s.Submit(ctx, FromDraft(requesterID, draft))
	var validation *ValidationError
	if err == nil || !errors.As(err, &validation) {
		if dErr := s.Sessions.Discard(ctx, token, requesterID); dErr != nil {
			s.logger.Warn("failed to discard session", slog.String("error", dErr.Error()))
		}
	}
	return report, err
}

// CheckSubmission runs the cooldown gate without creating anything.
func (s *Service) CheckSubmission(ctx context.Context, submitterID, locationKey string) (cooldown.Decision, error) {
	var decision cooldown.Decision
	err := s.Store.View(ctx, func(doc *models.Document) {
		decision = cooldown.Check(doc, submitterID, locationKey, s.now())
	})
	return decision, err
}

func (s *Service) validate(sub *Submission, now time.Time) error {
	if sub.SubmitterID == "" {
		return &ValidationError{Field: "submitter", Reason: "missing"}
	}
	if sub.LocationKey == "" {
		return &ValidationError{Field: "location", Reason: "missing"}
	}
	if s.Catalog != nil {
		if _, ok := s.Catalog.Lookup(sub.LocationKey); !ok {
			return &ValidationError{Field: "location", Reason: "not a monitored location"}
		}
	}
	if !sub.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "must be in_progress, past or upcoming"}
	}
	if sub.Origin == "" {
		sub.Origin = models.OriginCommand
	}

	sub.Note = strings.TrimSpace(sub.Note)
	if sub.Kind == models.KindUpcoming {
		if sub.Note == "" {
			return &ValidationError{Field: "note", Reason: "required for upcoming restocks"}
		}
		if utf8.RuneCountInString(sub.Note) > config.MaxNoteLength {
			return &ValidationError{Field: "note", Reason: "too long"}
		}
	} else {
		sub.Note = ""
	}

	today := s.startOfDay(now)
	switch sub.Kind {
	case models.KindInProgress:
		if sub.OccurredAt.IsZero() {
			sub.OccurredAt = now
		}
	case models.KindPast:
		if sub.OccurredAt.IsZero() {
			return &ValidationError{Field: "date", Reason: "missing"}
		}
		if sub.OccurredAt.After(now) {
			return &ValidationError{Field: "date", Reason: "cannot be in the future for a past restock"}
		}
	case models.KindUpcoming:
		if sub.OccurredAt.IsZero() {
			return &ValidationError{Field: "date", Reason: "missing"}
		}
		if sub.OccurredAt.Before(today) {
			return &ValidationError{Field: "date", Reason: "cannot be in the past for an upcoming restock"}
		}
	}
	return nil
}
