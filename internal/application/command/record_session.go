package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SESSION COMMAND
// Applies one completed study session to the user's record.
// ══════════════════════════════════════════════════════════════════════════════

// RecordSessionCommand contains a completed session.
type RecordSessionCommand struct {
	// UserID is the opaque id of the user.
	UserID string

	// DurationMs is the session length, in (0, study.MaxSessionMs].
	DurationMs int64

	// EndedAt is when the session ended (defaults to now if zero).
	EndedAt time.Time
}

// Validate validates the command.
func (c RecordSessionCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.DurationMs <= 0 {
		return shared.ErrNonPositiveDelta
	}
	if c.DurationMs > study.MaxSessionMs {
		return shared.ErrSessionTooLong
	}
	return nil
}

// RecordSessionResult contains the record after the session was applied.
type RecordSessionResult struct {
	Record     *study.StudyRecord
	Transition study.Transition
	Events     []shared.Event
}

// RecordSessionHandler handles the RecordSessionCommand.
type RecordSessionHandler struct {
	deps Deps
}

// NewRecordSessionHandler creates a new RecordSessionHandler.
func NewRecordSessionHandler(deps Deps) *RecordSessionHandler {
	return &RecordSessionHandler{deps: deps.withDefaults()}
}

// Handle applies the session under the user's lock and saves the record once.
func (h *RecordSessionHandler) Handle(ctx context.Context, cmd RecordSessionCommand) (*RecordSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_session: %w", err)
	}

	now := cmd.EndedAt
	if now.IsZero() {
		now = h.deps.Clock.Now()
	}

	unlock, err := h.deps.Locks.Lock(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("record_session: lock: %w", err)
	}
	defer unlock()

	var tr study.Transition
	rec, err := retry.DoWithData(ctx, h.deps.Retrier, func(ctx context.Context) (*study.StudyRecord, error) {
		r, err := h.deps.Records.GetOrCreate(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}
		t, err := h.deps.Ledger.Apply(r, cmd.DurationMs, now)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if err := h.deps.Records.Save(ctx, cmd.UserID, r); err != nil {
			return nil, err
		}
		tr = t
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("record_session: %w", err)
	}

	events := sessionEvents(cmd.UserID, cmd.DurationMs, rec, tr, now)
	publishAll(h.deps.Publisher, h.deps.Logger, events)

	h.deps.Logger.Debug("session recorded",
		slog.String("user_id", cmd.UserID),
		slog.Int64("duration_ms", cmd.DurationMs),
		slog.Bool("day_rolled", tr.DayRolled),
		slog.Int("streak", rec.CurrentStreak),
	)

	return &RecordSessionResult{Record: rec, Transition: tr, Events: events}, nil
}

// sessionEvents derives the domain events of one ledger transition.
func sessionEvents(userID string, durationMs int64, rec *study.StudyRecord, tr study.Transition, now time.Time) []shared.Event {
	events := make([]shared.Event, 0, 3)
	if tr.ArchivedDay != "" {
		events = append(events, shared.NewDayClosedEvent(userID, tr.ArchivedDay, tr.ArchivedMs, now))
	}
	switch {
	case tr.StreakExtended():
		events = append(events, shared.NewStreakExtendedEvent(userID, tr.StreakBefore, tr.StreakAfter, now))
	case tr.StreakBroken():
		events = append(events, shared.NewStreakBrokenEvent(userID, tr.StreakBefore, max(tr.DaysElapsed-1, 0), now))
	}
	events = append(events, shared.NewSessionRecordedEvent(userID, durationMs, rec.DailyTime, rec.TotalTime, now))
	return events
}
