package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps the document in memory. The Fail* fields inject errors in tests.
type MemoryBackend struct {
	mu          sync.Mutex
	data        []byte
	exists      bool
	Backups     [][]byte
	Quarantined [][]byte

	FailReads  error
	FailWrites error
	FailBackup error
}

// NewMemoryBackend returns an empty backend; Read reports ErrNotExist until the first Write.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// SetRaw replaces the stored bytes, e.g. to simulate a corrupted file.
func (b *MemoryBackend) SetRaw(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.exists = true
}

// Remove simulates a deleted document.
func (b *MemoryBackend) Remove() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	b.exists = false
}

// Raw returns a copy of the stored bytes.
func (b *MemoryBackend) Raw() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// BackupCount returns the number of backups taken so far.
func (b *MemoryBackend) BackupCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Backups)
}

func (b *MemoryBackend) Read(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailReads != nil {
		return nil, b.FailReads
	}
	if !b.exists {
		return nil, ErrNotExist
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Write(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailWrites != nil {
		return b.FailWrites
	}
	b.data = append([]byte(nil), data...)
	b.exists = true
	return nil
}

func (b *MemoryBackend) Backup(_ context.Context, data []byte, _ time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailBackup != nil {
		return b.FailBackup
	}
	b.Backups = append(b.Backups, append([]byte(nil), data...))
	return nil
}

func (b *MemoryBackend) Quarantine(_ context.Context, data []byte, _ time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Quarantined = append(b.Quarantined, append([]byte(nil), data...))
	return nil
}
