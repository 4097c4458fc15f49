package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKING COMMANDS
// Start/stop pairs for clients that report presence instead of durations.
// Stopping a session records it through the ledger like any other session.
// ══════════════════════════════════════════════════════════════════════════════

// StartSessionCommand opens a session.
type StartSessionCommand struct {
	UserID    string
	StartedAt time.Time // defaults to now
}

// StopSessionCommand closes the user's open session.
type StopSessionCommand struct {
	UserID  string
	EndedAt time.Time // defaults to now
}

// StopSessionResult describes the recorded session.
type StopSessionResult struct {
	Session    study.ActiveSession
	DurationMs int64                // recorded duration after capping
	Recorded   *RecordSessionResult // nil when the session was too short to count
	Capped     bool                 // duration was cut to the maximum session length
}

// SessionHandler handles start, stop and stale-session cleanup.
type SessionHandler struct {
	deps       Deps
	recorder   *RecordSessionHandler
	maxSession time.Duration
}

// NewSessionHandler creates a handler. maxSession caps a single session and
// enables stale cleanup; zero leaves only the ledger's 24 hour limit.
func NewSessionHandler(deps Deps, maxSession time.Duration) *SessionHandler {
	deps = deps.withDefaults()
	return &SessionHandler{
		deps:       deps,
		recorder:   NewRecordSessionHandler(deps),
		maxSession: maxSession,
	}
}

// Start opens a session for the user.
func (h *SessionHandler) Start(ctx context.Context, cmd StartSessionCommand) error {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return fmt.Errorf("start_session: %w", err)
	}
	at := cmd.StartedAt
	if at.IsZero() {
		at = h.deps.Clock.Now()
	}
	if err := h.deps.Sessions.Start(ctx, cmd.UserID, at); err != nil {
		return fmt.Errorf("start_session: %w", err)
	}
	publishAll(h.deps.Publisher, h.deps.Logger, []shared.Event{shared.NewSessionStartedEvent(cmd.UserID, at)})
	return nil
}

// Stop closes the user's session and records its duration.
func (h *SessionHandler) Stop(ctx context.Context, cmd StopSessionCommand) (*StopSessionResult, error) {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return nil, fmt.Errorf("stop_session: %w", err)
	}
	end := cmd.EndedAt
	if end.IsZero() {
		end = h.deps.Clock.Now()
	}

	s, err := h.deps.Sessions.Stop(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("stop_session: %w", err)
	}
	res, err := h.record(ctx, s, end)
	if err != nil {
		h.reopen(ctx, s)
		return nil, err
	}
	return res, nil
}

// CloseStale stops every session open longer than the maximum session
// length and records it capped to that length. It returns how many were closed.
func (h *SessionHandler) CloseStale(ctx context.Context) (int, error) {
	if h.maxSession <= 0 {
		return 0, nil
	}
	open, err := h.deps.Sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("close_stale_sessions: %w", err)
	}

	now := h.deps.Clock.Now()
	closed := 0
	var errs []error
	for _, s := range open {
		if s.Elapsed(now) <= h.maxSession {
			continue
		}
		stopped, err := h.deps.Sessions.Stop(ctx, s.UserID)
		if errors.Is(err, shared.ErrNoActiveSession) {
			continue // stopped concurrently
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := h.record(ctx, stopped, now); err != nil {
			h.reopen(ctx, stopped)
			errs = append(errs, err)
			continue
		}
		closed++
	}
	if len(errs) > 0 {
		return closed, fmt.Errorf("close_stale_sessions: %w", errors.Join(errs...))
	}
	return closed, nil
}

// reopen puts back a session whose recording failed, so a retried stop
// still finds it.
func (h *SessionHandler) reopen(ctx context.Context, s study.ActiveSession) {
	if err := h.deps.Sessions.Start(ctx, s.UserID, s.StartedAt); err != nil {
		h.deps.Logger.Error("failed to reopen session after record error",
			slog.String("user_id", s.UserID),
			slog.Time("started_at", s.StartedAt),
			slog.String("error", err.Error()),
		)
	}
}

func (h *SessionHandler) record(ctx context.Context, s study.ActiveSession, end time.Time) (*StopSessionResult, error) {
	res := &StopSessionResult{Session: s}

	limit := time.Duration(study.MaxSessionMs) * time.Millisecond
	if h.maxSession > 0 && h.maxSession < limit {
		limit = h.maxSession
	}
	elapsed := s.Elapsed(end)
	if elapsed > limit {
		elapsed = limit
		end = s.StartedAt.Add(limit)
		res.Capped = true
	}
	ms := elapsed.Milliseconds()
	res.DurationMs = max(ms, 0)
	if ms <= 0 {
		h.deps.Logger.Debug("dropping empty session", slog.String("user_id", s.UserID))
		return res, nil
	}

	recorded, err := h.recorder.Handle(ctx, RecordSessionCommand{
		UserID:     s.UserID,
		DurationMs: ms,
		EndedAt:    end,
	})
	if err != nil {
		return nil, fmt.Errorf("stop_session: %w", err)
	}
	res.Recorded = recorded
	return res, nil
}
