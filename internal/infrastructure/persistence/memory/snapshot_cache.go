package memory

import (
	"context"
	"sync"
	"time"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

type cachedSnapshot struct {
	snap    *leaderboard.Snapshot
	expires time.Time // zero = never
}

// SnapshotCache is a process-local leaderboard.SnapshotCache.
type SnapshotCache struct {
	mu    sync.RWMutex
	items map[leaderboard.Mode]cachedSnapshot
	clock timeutil.Clock
}

var _ leaderboard.SnapshotCache = (*SnapshotCache)(nil)

// NewSnapshotCache creates an empty cache. A nil clock uses the system clock.
func NewSnapshotCache(clock timeutil.Clock) *SnapshotCache {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &SnapshotCache{items: make(map[leaderboard.Mode]cachedSnapshot), clock: clock}
}

// GetSnapshot returns the snapshot for mode, or nil when absent or expired.
func (c *SnapshotCache) GetSnapshot(_ context.Context, mode leaderboard.Mode) (*leaderboard.Snapshot, error) {
	c.mu.RLock()
	item, ok := c.items[mode]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !item.expires.IsZero() && !c.clock.Now().Before(item.expires) {
		return nil, nil
	}
	return item.snap, nil
}

// SetSnapshot stores snap under its mode.
func (c *SnapshotCache) SetSnapshot(_ context.Context, snap *leaderboard.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return nil
	}
	item := cachedSnapshot{snap: snap}
	if ttl > 0 {
		item.expires = c.clock.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[snap.Mode] = item
	c.mu.Unlock()
	return nil
}

// Invalidate drops every snapshot.
func (c *SnapshotCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	clear(c.items)
	c.mu.Unlock()
	return nil
}
