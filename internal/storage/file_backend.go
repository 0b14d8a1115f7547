package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileBackend keeps the document in a single JSON file. Writes go to a temp file in the
// same directory and are renamed into place.
type FileBackend struct {
	Path      string
	BackupDir string
}

// NewFileBackend returns a FileBackend for path. Backups default to a "backups"
// directory next to path.
func NewFileBackend(path, backupDir string) *FileBackend {
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(path), "backups")
	}
	return &FileBackend{Path: path, BackupDir: backupDir}
}

func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return data, err
}

func (b *FileBackend) Write(_ context.Context, data []byte) error {
	return writeAtomic(b.Path, data)
}

func (b *FileBackend) Backup(_ context.Context, data []byte, at time.Time) error {
	name := strings.TrimSuffix(filepath.Base(b.Path), filepath.Ext(b.Path))
	return writeAtomic(filepath.Join(b.BackupDir, name+"-"+stamp(at)+".json"), data)
}

func (b *FileBackend) Quarantine(_ context.Context, data []byte, at time.Time) error {
	return writeAtomic(b.Path+".corrupt-"+stamp(at), data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
