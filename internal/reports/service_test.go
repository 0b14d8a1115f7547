package reports_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"restockbot/backend/internal/cooldown"
	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/session"
	"restockbot/backend/internal/storage"
)

var catalog = &models.Catalog{Locations: []models.Location{
	{Key: "store-a", Name: "Store A", Address: "1 Main St", Region: "north"},
	{Key: "store-b", Name: "Store B", Address: "2 Main St", Region: "north"},
	{Key: "store-c", Name: "Store C", Address: "3 Side St", Region: "south"},
}}

type fixture struct {
	svc      *reports.Service
	store    *storage.Store
	backend  *storage.MemoryBackend
	alerts   *MockAlertPublisher
	sessions *session.MemoryCache
	now      time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// Wednesday 2026-10-14 12:00 UTC; weeks end on Sunday.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: storage.NewMemoryBackend(),
		alerts:  new(MockAlertPublisher),
		now:     time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store = storage.New(f.backend, logger.Discard(), metrics.Nop{},
		storage.WithClock(clock),
		storage.WithWeek(time.Sunday, time.UTC),
	)
	f.sessions = session.NewMemoryCache(5*time.Minute, metrics.Nop{})
	f.sessions.SetClock(clock)
	f.svc = reports.NewService(f.store, catalog, f.sessions, f.alerts, logger.Discard(), metrics.Nop{},
		reports.WithClock(clock),
		reports.WithSubmitterCooldown(24*time.Hour),
	)
	return f
}

func (f *fixture) submit(t *testing.T, submitter, location string, kind models.ReportKind) *models.Report {
	t.Helper()
	sub := reports.Submission{LocationKey: location, Kind: kind, SubmitterID: submitter}
	if kind == models.KindUpcoming {
		sub.Note = "truck arrives in the morning"
		sub.OccurredAt = f.now.Add(24 * time.Hour)
	}
	if kind == models.KindPast {
		sub.OccurredAt = f.now.Add(-24 * time.Hour)
	}
	r, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	return r
}

func (f *fixture) doc(t *testing.T) *models.Document {
	t.Helper()
	var out *models.Document
	require.NoError(t, f.store.View(context.Background(), func(doc *models.Document) { out = doc }))
	return out
}

func TestSubmit_CreatesPendingReportAndSubmitterCooldown(t *testing.T) {
	f := newFixture(t)

	r := f.submit(t, "u1", "store-a", models.KindInProgress)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, f.now, r.OccurredAt, "live sightings default to now")
	assert.Equal(t, models.OriginCommand, r.Origin)

	doc := f.doc(t)
	require.Len(t, doc.Cooldowns, 1)
	assert.Equal(t, models.CooldownSubmitter, doc.Cooldowns[0].Kind)
	assert.Equal(t, "u1", doc.Cooldowns[0].SubmitterID)
	assert.Equal(t, f.now.Add(24*time.Hour), doc.Cooldowns[0].ExpiresAt)
}

func TestSubmit_SecondSubmissionWhilePendingIsDenied(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, "u1", "store-a", models.KindInProgress)

	_, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "u2",
	})

	var denied *reports.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, cooldown.ReasonPending, denied.Reason)
	assert.Equal(t, first.ID, denied.Detail)
	assert.Contains(t, reports.UserMessage(err), "pending report")
	assert.Len(t, f.doc(t).Reports, 1)
}

func TestSubmit_DisabledReporterIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.AdminDisableReporter(ctx, "u1", "posting fake sightings", "mod"))

	_, err := f.svc.Submit(ctx, reports.Submission{LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "u1"})

	var denied *reports.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, cooldown.ReasonDisabled, denied.Reason)
	assert.Contains(t, reports.UserMessage(err), "posting fake sightings")

	require.NoError(t, f.svc.AdminEnableReporter(ctx, "u1", "mod"))
	_, err = f.svc.Submit(ctx, reports.Submission{LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "u1"})
	assert.NoError(t, err)

	rec := f.doc(t).DisabledReporter("u1")
	require.NotNil(t, rec, "re-enabling keeps the moderation record")
	assert.True(t, rec.Enabled)
	assert.Equal(t, "mod", rec.EnabledBy)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name  string
		sub   reports.Submission
		field string
	}{
		{"unknown location", reports.Submission{LocationKey: "nowhere", Kind: models.KindInProgress, SubmitterID: "u1"}, "location"},
		{"bad kind", reports.Submission{LocationKey: "store-a", Kind: "soon", SubmitterID: "u1"}, "kind"},
		{"upcoming without note", reports.Submission{LocationKey: "store-a", Kind: models.KindUpcoming, SubmitterID: "u1", OccurredAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}, "note"},
		{"upcoming in the past", reports.Submission{LocationKey: "store-a", Kind: models.KindUpcoming, SubmitterID: "u1", Note: "x", OccurredAt: time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)}, "date"},
		{"past in the future", reports.Submission{LocationKey: "store-a", Kind: models.KindPast, SubmitterID: "u1", OccurredAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}, "date"},
		{"past without date", reports.Submission{LocationKey: "store-a", Kind: models.KindPast, SubmitterID: "u1"}, "date"},
		{"missing submitter", reports.Submission{LocationKey: "store-a", Kind: models.KindInProgress}, "submitter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), tt.sub)

			var validation *reports.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tt.field, validation.Field)
			assert.Empty(t, f.doc(t).Cooldowns, "no cooldown for a rejected submission")
		})
	}
}

func TestSubmit_UpcomingTodayIsAccepted(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a",
		Kind:        models.KindUpcoming,
		SubmitterID: "u1",
		Note:        "  after lunch  ",
		OccurredAt:  time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "after lunch", r.Note)
}

func TestSubmit_NoteDroppedForNonUpcoming(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "u1", Note: "ignored",
	})
	require.NoError(t, err)
	assert.Empty(t, r.Note)
}

func TestSubmit_PersistenceFailureCommitsNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Load(context.Background()))
	f.backend.FailWrites = errors.New("disk full")

	_, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "u1",
	})
	require.Error(t, err)
	assert.True(t, storage.IsPersistence(err))
	assert.Equal(t, "Something went wrong while saving. Please try again in a moment.", reports.UserMessage(err))

	f.backend.FailWrites = nil
	assert.Empty(t, f.doc(t).Reports)
	assert.Empty(t, f.doc(t).Cooldowns)
}

func TestResolve_ApproveLiveSighting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, "u1", "store-a", models.KindInProgress)
	occurred := r.OccurredAt

	f.advance(30 * time.Minute)
	approvedAt := f.now
	f.alerts.On("PublishAlert", mock.Anything, mock.MatchedBy(func(a reports.Alert) bool {
		return a.ReportID == r.ID && a.Location.Name == "Store A" && a.ModeratorNote == "confirmed by staff"
	})).Return(nil).Once()

	res, err := f.svc.Resolve(ctx, r.ID, reports.Approve, "mod-1", "confirmed by staff")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, res.Report.Status)
	assert.True(t, res.HistoryUpdated)
	assert.True(t, res.AlertSent)
	require.NotNil(t, res.Cooldown)
	assert.Equal(t, approvedAt.Add(36*time.Hour), res.Cooldown.ExpiresAt)

	doc := f.doc(t)
	stored := doc.FindReport(r.ID)
	assert.Equal(t, "mod-1", stored.ReviewerID)
	require.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, approvedAt, *stored.ResolvedAt)

	h := doc.History("store-a")
	require.NotNil(t, h)
	require.NotNil(t, h.CurrentWeek)
	assert.Equal(t, occurred, *h.CurrentWeek)

	var locationCooldowns []models.Cooldown
	for _, c := range doc.Cooldowns {
		if c.Kind == models.CooldownLocation {
			locationCooldowns = append(locationCooldowns, *c)
		}
	}
	require.Len(t, locationCooldowns, 1)
	assert.Equal(t, approvedAt.Add(36*time.Hour), locationCooldowns[0].ExpiresAt)

	f.alerts.AssertNumberOfCalls(t, "PublishAlert", 1)
}

func TestResolve_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, "u1", "store-a", models.KindInProgress)
	f.alerts.On("PublishAlert", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Resolve(ctx, r.ID, reports.Approve, "mod-1", "")
	require.NoError(t, err)
	cooldownsAfterFirst := len(f.doc(t).Cooldowns)

	_, err = f.svc.Resolve(ctx, r.ID, reports.Approve, "mod-2", "")
	var already *reports.AlreadyResolvedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, models.StatusApproved, already.Status)

	_, err = f.svc.Resolve(ctx, r.ID, reports.Reject, "mod-2", "")
	require.ErrorAs(t, err, &already)

	f.alerts.AssertNumberOfCalls(t, "PublishAlert", 1)
	assert.Len(t, f.doc(t).Cooldowns, cooldownsAfterFirst)
	assert.Equal(t, "mod-1", f.doc(t).FindReport(r.ID).ReviewerID)
}

func TestResolve_ApprovePastOnlyUpdatesHistory(t *testing.T) {
	for _, kind := range []models.ReportKind{models.KindPast, models.KindUpcoming} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			r := f.submit(t, "u1", "store-a", kind)

			res, err := f.svc.Resolve(context.Background(), r.ID, reports.Approve, "mod-1", "")
			require.NoError(t, err)

			assert.True(t, res.HistoryUpdated)
			assert.Nil(t, res.Cooldown)
			assert.False(t, res.AlertSent)
			f.alerts.AssertNotCalled(t, "PublishAlert", mock.Anything, mock.Anything)

			for _, c := range f.doc(t).Cooldowns {
				assert.NotEqual(t, models.CooldownLocation, c.Kind)
			}
			assert.Equal(t, r.OccurredAt, *f.doc(t).History("store-a").CurrentWeek)
		})
	}
}

func TestResolve_RejectRemovesSubmitterCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, "u1", "store-a", models.KindInProgress)
	f.submit(t, "u1", "store-b", models.KindInProgress)

	res, err := f.svc.Resolve(ctx, r.ID, reports.Reject, "mod-1", "blurry photo")
	require.NoError(t, err)
	assert.Equal(t, 1, res.CooldownsRemoved)
	assert.False(t, res.HistoryUpdated)
	assert.Nil(t, f.doc(t).History("store-a"))

	decision, err := f.svc.CheckSubmission(ctx, "u1", "store-a")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	_, err = f.svc.Submit(ctx, reports.Submission{LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "u1"})
	assert.NoError(t, err)

	decision, err = f.svc.CheckSubmission(ctx, "u1", "store-b")
	require.NoError(t, err)
	assert.Equal(t, cooldown.ReasonPending, decision.Reason, "other locations keep their state")
}

func TestResolve_UnknownReport(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), "missing", reports.Approve, "mod-1", "")
	assert.ErrorIs(t, err, reports.ErrReportNotFound)
}

func TestResolve_ReloadsWhenReportOnlyOnDisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Load(ctx))

	// Another writer appended a pending report to the stored document.
	other := storage.New(f.backend, logger.Discard(), metrics.Nop{})
	require.NoError(t, other.Update(ctx, func(doc *models.Document) error {
		doc.Reports = append(doc.Reports, &models.Report{
			ID: "external", LocationKey: "store-c", Kind: models.KindPast,
			OccurredAt: f.now.Add(-time.Hour), SubmitterID: "u9", Status: models.StatusPending,
		})
		return nil
	}))

	res, err := f.svc.Resolve(ctx, "external", reports.Approve, "mod-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, res.Report.Status)
}

func TestResolve_AlertFailureKeepsDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, "u1", "store-a", models.KindInProgress)
	f.alerts.On("PublishAlert", mock.Anything, mock.Anything).Return(errors.New("telegram down"))

	res, err := f.svc.Resolve(ctx, r.ID, reports.Approve, "mod-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, reports.ErrAlertNotDelivered)
	require.NotNil(t, res)
	assert.False(t, res.AlertSent)
	assert.NotNil(t, res.Cooldown)

	_, err = f.svc.Resolve(ctx, r.ID, reports.Approve, "mod-1", "")
	var already *reports.AlreadyResolvedError
	assert.ErrorAs(t, err, &already)
}

func TestResolve_StatusWriteFailureLeavesReportPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, "u1", "store-a", models.KindInProgress)
	f.backend.FailWrites = errors.New("disk full")

	_, err := f.svc.Resolve(ctx, r.ID, reports.Approve, "mod-1", "")
	require.Error(t, err)
	assert.True(t, storage.IsPersistence(err))

	f.backend.FailWrites = nil
	assert.True(t, f.doc(t).FindReport(r.ID).IsPending())
	f.alerts.AssertNotCalled(t, "PublishAlert", mock.Anything, mock.Anything)
}

func TestSubmitSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.sessions.Create(ctx, "u1", session.Draft{Kind: models.KindInProgress, Origin: models.OriginButton})
	require.NoError(t, err)
	_, err = f.sessions.Update(ctx, token, "u1", session.Draft{Region: "north", LocationKey: "store-a"})
	require.NoError(t, err)

	_, err = f.svc.SubmitSession(ctx, token, "u2")
	assert.ErrorIs(t, err, session.ErrNotFound, "only the owner may submit")

	r, err := f.svc.SubmitSession(ctx, token, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.OriginButton, r.Origin)
	assert.Equal(t, "store-a", r.LocationKey)

	_, err = f.sessions.Get(ctx, token, "u1")
	assert.ErrorIs(t, err, session.ErrNotFound, "session is discarded after submission")
}

func TestSubmitSession_KeepsSessionOnValidationError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.sessions.Create(ctx, "u1", session.Draft{Kind: models.KindUpcoming, LocationKey: "store-a"})
	require.NoError(t, err)

	_, err = f.svc.SubmitSession(ctx, token, "u1")
	var validation *reports.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.sessions.Get(ctx, token, "u1")
	assert.NoError(t, err)
}

func TestSubmitSession_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.sessions.Create(ctx, "u1", session.Draft{Kind: models.KindInProgress, LocationKey: "store-a"})
	require.NoError(t, err)

	f.advance(6 * time.Minute)
	_, err = f.svc.SubmitSession(ctx, token, "u1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, "This form has expired. Please start again.", reports.UserMessage(err))
}
