package reports

import (
	"errors"
	"fmt"

	"restockbot/backend/internal/cooldown"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/session"
	"restockbot/backend/internal/storage"
)

var (
	// ErrReportNotFound is returned when no report has the requested id, even after a reload.
	ErrReportNotFound = errors.New("report not found")
	// ErrReporterNotDisabled is returned when enabling a reporter that is not blocked.
	ErrReporterNotDisabled = errors.New("reporter is not disabled")
	// ErrUnknownLocation is returned for location keys missing from the catalog.
	ErrUnknownLocation = errors.New("unknown location")
	// ErrAlertNotDelivered is joined to a successful resolution whose alert failed to publish.
	ErrAlertNotDelivered = errors.New("alert not delivered")
)

// ValidationError reports bad or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DeniedError is an expected refusal by the cooldown gate.
type DeniedError struct {
	Reason   cooldown.Reason
	DaysLeft int
	Detail   string
}

func (e *DeniedError) Error() string {
	switch e.Reason {
	case cooldown.ReasonDisabled:
		return fmt.Sprintf("submission denied: reporter disabled (%s)", e.Detail)
	case cooldown.ReasonPending:
		return fmt.Sprintf("submission denied: report %s is already pending for this location", e.Detail)
	default:
		return fmt.Sprintf("submission denied: %s, %d day(s) left", e.Reason, e.DaysLeft)
	}
}

// AlreadyResolvedError is returned when resolving a report that has left pending.
type AlreadyResolvedError struct {
	Status models.ReportStatus
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("report already %s", e.Status)
}

// UserMessage renders err as text that is safe to show to a reporter or moderator.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		validation *ValidationError
		denied     *DeniedError
		resolved   *AlreadyResolvedError
	)
	switch {
	case errors.As(err, &denied):
		return deniedMessage(denied)
	case errors.As(err, &validation):
		return fmt.Sprintf("Please check the %s: %s.", validation.Field, validation.Reason)
	case errors.As(err, &resolved):
		return fmt.Sprintf("This report was already %s.", resolved.Status)
	case errors.Is(err, ErrReportNotFound):
		return "This report no longer exists."
	case errors.Is(err, ErrUnknownLocation):
		return "That location is not monitored."
	case errors.Is(err, ErrReporterNotDisabled):
		return "That reporter is not disabled."
	case errors.Is(err, session.ErrNotFound):
		return "This form has expired. Please start again."
	case storage.IsPersistence(err):
		return "Something went wrong while saving. Please try again in a moment."
	default:
		return "Something went wrong. Please try again."
	}
}

func deniedMessage(e *DeniedError) string {
	switch e.Reason {
	case cooldown.ReasonDisabled:
		if e.Detail == "" {
			return "You have been blocked from submitting reports."
		}
		return fmt.Sprintf("You have been blocked from submitting reports: %s", e.Detail)
	case cooldown.ReasonPending:
		return "This location already has a pending report awaiting review."
	case cooldown.ReasonLocationCooldown:
		return fmt.Sprintf("A restock was just confirmed here. New reports open in %s.", days(e.DaysLeft))
	case cooldown.ReasonSubmitterCooldown:
		return fmt.Sprintf("You already reported this location. Try again in %s.", days(e.DaysLeft))
	}
	return "Your report cannot be accepted right now."
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
