package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/storage"
)

func TestFileBackend_ReadMissing(t *testing.T) {
	b := storage.NewFileBackend(filepath.Join(t.TempDir(), "reports.json"), "")

	_, err := b.Read(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotExist)
}

func TestFileBackend_WriteReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "reports.json")
	b := storage.NewFileBackend(path, "")
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, []byte(`{"version":1}`)))
	require.NoError(t, b.Write(ctx, []byte(`{"version":2}`)))

	data, err := b.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "reports.json", entries[0].Name())
}

func TestFileBackend_BackupAndQuarantineNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports.json")
	b := storage.NewFileBackend(path, "")
	at := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, b.Backup(ctx, []byte("backup"), at))
	require.NoError(t, b.Quarantine(ctx, []byte("garbage"), at))

	backup, err := os.ReadFile(filepath.Join(dir, "backups", "reports-20261018-210000.000.json"))
	require.NoError(t, err)
	assert.Equal(t, "backup", string(backup))

	quarantined, err := os.ReadFile(path + ".corrupt-20261018-210000.000")
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(quarantined))
}

func TestStore_FileBackendRecoversCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	s := storage.New(storage.NewFileBackend(path, ""), logger.Discard(), metrics.Nop{},
		storage.WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, s.Load(context.Background()))

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 2`)

	require.NoError(t, s.Update(context.Background(), func(doc *models.Document) error {
		doc.EnsureHistory("store-a")
		return nil
	}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "store-a")
}
