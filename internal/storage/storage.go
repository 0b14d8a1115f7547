// Package storage owns the durable report document: reports, cooldowns, location
// history, disabled reporters and role snapshots. It recovers from missing or corrupt
// documents without ever dropping location history that is already in memory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/models"
)

// Store is the single in-process owner of the document. All access goes through View
// and Update, which hold one mutex for the whole document.
type Store struct {
	mu      sync.Mutex
	backend Backend
	doc     *models.Document
	logger  *slog.Logger
	metrics metrics.Recorder

	now         func() time.Time
	rolloverDay time.Weekday
	location    *time.Location
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithWeek sets the weekday on which the weekly rollover runs and the zone used for
// week boundaries.
func WithWeek(rolloverDay time.Weekday, loc *time.Location) Option {
	return func(s *Store) {
		s.rolloverDay = rolloverDay
		if loc != nil {
			s.location = loc
		}
	}
}

// New creates a Store on top of backend. Nothing is read until Load or the first
// View/Update.
func New(backend Backend, log *slog.Logger, rec metrics.Recorder, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	s := &Store{
		backend:     backend,
		logger:      log,
		metrics:     rec,
		now:         time.Now,
		rolloverDay: time.Sunday,
		location:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WeekStart returns the start of the week containing t using the store's week settings.
func (s *Store) WeekStart(t time.Time) time.Time {
	return models.WeekStart(t, s.rolloverDay, s.location)
}

// Load (re)reads the document from the backend. A missing or unparseable document is
// replaced with an empty one that keeps any location history already held in memory.
// Only other I/O failures are returned.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	prior := s.doc
	now := s.now()

	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotExist) {
		s.logger.Warn("store document missing, starting from an empty document",
			slog.Bool("history_preserved", prior.HasHistory()),
		)
		s.metrics.RecordStoreRecovery("missing")
		s.backupPrior(ctx, prior, now)
		s.doc = recoveredDocument(prior)
		return s.saveLocked(ctx)
	}
	if err != nil {
		return persistenceErr("read", err)
	}

	doc, decodeErr := decodeDocument(data)
	if decodeErr != nil {
		s.logger.Error("store document is corrupt, quarantining and rebuilding",
			slog.String("error", decodeErr.Error()),
			slog.Int("bytes", len(data)),
			slog.Bool("history_preserved", prior.HasHistory()),
		)
		s.metrics.RecordStoreRecovery("corrupt")
		logger.CaptureError(decodeErr, map[string]string{"component": "storage", "kind": "corruption"})

		if qErr := s.backend.Quarantine(ctx, data, now); qErr != nil {
			s.logger.Error("failed to quarantine corrupt store document",
				slog.String("error", qErr.Error()),
			)
		}
		s.backupPrior(ctx, prior, now)
		s.doc = recoveredDocument(prior)
		return s.saveLocked(ctx)
	}

	mergeHistory(doc, prior)
	migrated := migrate(doc, s.WeekStart)
	s.doc = doc
	if migrated {
		s.logger.Info("store document migrated", slog.Int("version", doc.Version))
		return s.saveLocked(ctx)
	}
	return nil
}

// backupPrior attempts a backup of the in-memory document before it is replaced. A
// failure is logged, never returned.
func (s *Store) backupPrior(ctx context.Context, prior *models.Document, now time.Time) {
	if !prior.HasHistory() {
		return
	}
	data, err := encodeDocument(prior)
	if err == nil {
		err = s.backend.Backup(ctx, data, now)
	}
	if err != nil {
		s.logger.Error("failed to back up in-memory document before recovery",
			slog.String("error", err.Error()),
		)
	}
}

// Save writes the in-memory document to the backend.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	s.doc.Version = models.CurrentSchemaVersion
	data, err := encodeDocument(s.doc)
	if err != nil {
		s.metrics.RecordStoreSave(false)
		return persistenceErr("encode", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		s.metrics.RecordStoreSave(false)
		s.logger.Error("failed to write store document", slog.String("error", err.Error()))
		logger.CaptureError(err, map[string]string{"component": "storage", "kind": "write"})
		return persistenceErr("write", err)
	}
	s.metrics.RecordStoreSave(true)
	return nil
}

// Backup writes a timestamped copy of the current document.
func (s *Store) Backup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	_, err := s.backupLocked(ctx)
	return err
}

// backupLocked writes a backup and returns the encoded document so callers can roll
// back to it.
func (s *Store) backupLocked(ctx context.Context) ([]byte, error) {
	data, err := encodeDocument(s.doc)
	if err != nil {
		return nil, persistenceErr("encode", err)
	}
	if err := s.backend.Backup(ctx, data, s.now()); err != nil {
		return nil, persistenceErr("backup", err)
	}
	return data, nil
}

// restoreLocked replaces the in-memory document with an encoded snapshot taken before
// a failed mutation.
func (s *Store) restoreLocked(snapshot []byte) {
	doc, err := decodeDocument(snapshot)
	if err != nil {
		s.logger.Error("failed to roll back in-memory document", slog.String("error", err.Error()))
		return
	}
	s.doc = doc
}

// View runs fn with the live document under the store lock. fn must not retain or
// mutate the document.
func (s *Store) View(ctx context.Context, fn func(doc *models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	fn(s.doc)
	return nil
}

// Update runs fn with the live document under the store lock and saves when fn returns
// nil. If fn or the save fails, the in-memory document is rolled back to its state
// before fn ran, so memory never holds changes that were not committed.
func (s *Store) Update(ctx context.Context, fn func(doc *models.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	snapshot, err := encodeDocument(s.doc)
	if err != nil {
		return persistenceErr("encode", err)
	}
	if err := fn(s.doc); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	if err := s.saveLocked(ctx); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.doc != nil {
		return nil
	}
	return s.loadLocked(ctx)
}

func decodeDocument(data []byte) (*models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	normalize(&doc)
	return &doc, nil
}

func encodeDocument(doc *models.Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// normalize replaces nil collections so the document always serializes as arrays.
func normalize(doc *models.Document) {
	if doc.Reports == nil {
		doc.Reports = []*models.Report{}
	}
	if doc.Cooldowns == nil {
		doc.Cooldowns = []*models.Cooldown{}
	}
	if doc.LocationHistory == nil {
		doc.LocationHistory = []*models.LocationHistory{}
	}
	if doc.DisabledReporters == nil {
		doc.DisabledReporters = []*models.DisabledReporter{}
	}
	if doc.RoleSnapshots == nil {
		doc.RoleSnapshots = []*models.RoleSnapshot{}
	}
}

// recoveredDocument is the default structure used after a missing or corrupt load. It
// keeps the prior location history and scheduler settings.
func recoveredDocument(prior *models.Document) *models.Document {
	doc := models.NewDocument()
	if prior == nil {
		return doc
	}
	doc.LocationHistory = append(doc.LocationHistory, prior.LocationHistory...)
	doc.Settings = prior.Settings
	return doc
}

// mergeHistory appends in-memory history entries that the freshly read document lacks.
func mergeHistory(fresh, prior *models.Document) {
	if !prior.HasHistory() {
		return
	}
	for _, h := range prior.LocationHistory {
		if fresh.History(h.LocationKey) == nil {
			fresh.LocationHistory = append(fresh.LocationHistory, h)
		}
	}
}
