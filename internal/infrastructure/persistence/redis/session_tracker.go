package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// SessionTracker keeps open sessions in one Redis hash: userID -> start epoch ms.
// Start uses HSETNX and Stop reads and deletes the field atomically, so
// several server instances can share the tracker.
type SessionTracker struct {
	cache *Cache
}

var _ study.SessionTracker = (*SessionTracker)(nil)

// stopScript returns the start time and removes the field in one step.
var stopScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v then redis.call('HDEL', KEYS[1], ARGV[1]) end
return v
`)

// NewSessionTracker creates a tracker on cache.
func NewSessionTracker(cache *Cache) *SessionTracker {
	return &SessionTracker{cache: cache}
}

func (t *SessionTracker) key() string {
	return t.cache.Key("sessions", "active")
}

// Start opens a session for userID at the given time.
func (t *SessionTracker) Start(ctx context.Context, userID string, at time.Time) error {
	if userID == "" {
		return shared.ErrEmptyUserID
	}
	ok, err := t.cache.Client().HSetNX(ctx, t.key(), userID, at.UnixMilli()).Result()
	if err != nil {
		return shared.StorageError("SessionTracker.Start", err)
	}
	if !ok {
		return shared.ErrSessionAlreadyActive
	}
	return nil
}

// Stop closes the open session for userID.
func (t *SessionTracker) Stop(ctx context.Context, userID string) (study.ActiveSession, error) {
	if userID == "" {
		return study.ActiveSession{}, shared.ErrEmptyUserID
	}
	raw, err := stopScript.Run(ctx, t.cache.Client(), []string{t.key()}, userID).Text()
	if errors.Is(err, redis.Nil) {
		return study.ActiveSession{}, shared.ErrNoActiveSession
	}
	if err != nil {
		return study.ActiveSession{}, shared.StorageError("SessionTracker.Stop", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return study.ActiveSession{}, shared.StorageError("SessionTracker.Stop", fmt.Errorf("bad start time %q: %w", raw, err))
	}

	return study.ActiveSession{UserID: userID, StartedAt: time.UnixMilli(ms)}, nil
}

// List returns every open session, oldest first.
func (t *SessionTracker) List(ctx context.Context) ([]study.ActiveSession, error) {
	all, err := t.cache.Client().HGetAll(ctx, t.key()).Result()
	if err != nil {
		return nil, shared.StorageError("SessionTracker.List", err)
	}

	out := make([]study.ActiveSession, 0, len(all))
	for userID, raw := range all {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, study.ActiveSession{UserID: userID, StartedAt: time.UnixMilli(ms)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
