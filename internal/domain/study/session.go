package study

import (
	"context"
	"time"
)

// ActiveSession is a session that was started and not yet stopped.
type ActiveSession struct {
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// Elapsed returns the session length at now, never negative.
func (s ActiveSession) Elapsed(now time.Time) time.Duration {
	if d := now.Sub(s.StartedAt); d > 0 {
		return d
	}
	return 0
}

// SessionTracker keeps the start time of open sessions per user.
// A user has at most one open session.
type SessionTracker interface {
	// Start opens a session; shared.ErrSessionAlreadyActive if one is open.
	Start(ctx context.Context, userID string, at time.Time) error

	// Stop closes the open session and returns it; shared.ErrNoActiveSession if none.
	Stop(ctx context.Context, userID string) (ActiveSession, error)

	// List returns every open session ordered by start time.
	List(ctx context.Context) ([]ActiveSession, error)
}
