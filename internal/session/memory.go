package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"restockbot/backend/internal/metrics"
)

// MemoryCache is a process-local Cache. Expired entries are dropped on access and by Sweep.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
	metrics metrics.Recorder
}

// NewMemoryCache returns an empty cache with the given TTL.
func NewMemoryCache(ttl time.Duration, rec metrics.Recorder) *MemoryCache {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &MemoryCache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
		metrics: rec,
	}
}

// SetClock overrides time.Now. Meant for tests.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Create(_ context.Context, ownerID string, draft Draft) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token := NewToken()
	c.entries[token] = &Entry{
		Token:     token,
		OwnerID:   ownerID,
		Draft:     draft,
		CreatedAt: c.now(),
	}
	return token, nil
}

func (c *MemoryCache) Get(_ context.Context, token, requesterID string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(token, requesterID)
	if err != nil {
		return Draft{}, err
	}
	return e.Draft, nil
}

func (c *MemoryCache) Update(_ context.Context, token, requesterID string, patch Draft) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(token, requesterID)
	if err != nil {
		return Draft{}, err
	}
	e.Draft = e.Draft.Merge(patch)
	return e.Draft, nil
}

func (c *MemoryCache) Discard(_ context.Context, token, requesterID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.lookupLocked(token, requesterID); err != nil {
		return err
	}
	delete(c.entries, token)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) lookupLocked(token, requesterID string) (*Entry, error) {
	e, ok := c.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Expired(c.now(), c.ttl) {
		delete(c.entries, token)
		c.metrics.RecordSessionEvictions(1)
		return nil, ErrNotFound
	}
	if e.OwnerID != requesterID {
		return nil, ErrNotFound
	}
	return e, nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for token, e := range c.entries {
		if e.Expired(now, c.ttl) {
			delete(c.entries, token)
			removed++
		}
	}
	if removed > 0 {
		c.metrics.RecordSessionEvictions(removed)
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (c *MemoryCache) StartSweeper(ctx context.Context, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 && log != nil {
					log.Debug("expired sessions swept", slog.Int("count", n))
				}
			}
		}
	}()
}
