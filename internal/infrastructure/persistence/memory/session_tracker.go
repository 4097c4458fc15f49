package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
)

// SessionTracker is a process-local study.SessionTracker.
type SessionTracker struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

var _ study.SessionTracker = (*SessionTracker)(nil)

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{starts: make(map[string]time.Time)}
}

// Start opens a session for userID.
func (t *SessionTracker) Start(_ context.Context, userID string, at time.Time) error {
	if userID == "" {
		return shared.ErrEmptyUserID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.starts[userID]; ok {
		return shared.ErrSessionAlreadyActive
	}
	t.starts[userID] = at
	return nil
}

// Stop closes and returns the open session for userID.
func (t *SessionTracker) Stop(_ context.Context, userID string) (study.ActiveSession, error) {
	if userID == "" {
		return study.ActiveSession{}, shared.ErrEmptyUserID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.starts[userID]
	if !ok {
		return study.ActiveSession{}, shared.ErrNoActiveSession
	}
	delete(t.starts, userID)
	return study.ActiveSession{UserID: userID, StartedAt: at}, nil
}

// List returns open sessions, oldest first.
func (t *SessionTracker) List(_ context.Context) ([]study.ActiveSession, error) {
	t.mu.Lock()
	out := make([]study.ActiveSession, 0, len(t.starts))
	for id, at := range t.starts {
		out = append(out, study.ActiveSession{UserID: id, StartedAt: at})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
