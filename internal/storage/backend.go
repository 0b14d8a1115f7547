package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotExist is returned by Backend.Read when no document has been written yet.
var ErrNotExist = errors.New("store document does not exist")

// Backend is the byte-level persistence substrate for the store document.
type Backend interface {
	// Read returns the last written document, or ErrNotExist.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the document. A failed write must not leave a partially written
	// document behind for the next Read.
	Write(ctx context.Context, data []byte) error
	// Backup stores a timestamped full copy next to the live document.
	Backup(ctx context.Context, data []byte, at time.Time) error
	// Quarantine keeps unparseable bytes aside for later inspection.
	Quarantine(ctx context.Context, data []byte, at time.Time) error
}

// PersistenceError wraps an I/O failure of the backing store. Operations that return
// it must be treated as not committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err came from the backing store.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

const timestampLayout = "20060102-150405.000"

func stamp(at time.Time) string {
	return at.UTC().Format(timestampLayout)
}
