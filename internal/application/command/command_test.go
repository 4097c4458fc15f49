package command

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/memory"
	"github.com/studyhub/studyhub/pkg/logger"
	"github.com/studyhub/studyhub/pkg/retry"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

const hour = timeutil.MsPerHour

var day1 = time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

type capture struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *capture) Publish(e shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capture) types() []shared.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]shared.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	repo   *memory.RecordRepository
	events *capture
	clock  *timeutil.FixedClock
	deps   Deps
}

func newFixture() *fixture {
	cal := timeutil.NewCalendar(time.UTC)
	f := &fixture{
		repo:   memory.NewRecordRepository(),
		events: &capture{},
		clock:  &timeutil.FixedClock{T: day1},
	}
	f.deps = Deps{
		Records:   f.repo,
		Ledger:    study.NewLedger(study.DefaultLedgerConfig(), cal),
		Sessions:  memory.NewSessionTracker(),
		Publisher: f.events,
		Clock:     f.clock,
		Logger:    logger.Discard(),
	}
	return f
}

func (f *fixture) seed(t *testing.T, userID string, total int64) {
	t.Helper()
	rec := study.NewStudyRecord(userID)
	rec.TotalTime = total
	require.NoError(t, f.repo.Save(context.Background(), userID, rec))
}

func (f *fixture) get(t *testing.T, userID string) *study.StudyRecord {
	t.Helper()
	rec, err := f.repo.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	return rec
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordSession_FirstSession(t *testing.T) {
	f := newFixture()
	h := NewRecordSessionHandler(f.deps)

	res, err := h.Handle(context.Background(), RecordSessionCommand{UserID: "u1", DurationMs: 2 * hour})
	require.NoError(t, err)
	assert.Equal(t, int64(2*hour), res.Record.TotalTime)
	assert.Equal(t, int64(2*hour), res.Record.DailyTime)
	assert.True(t, day1.Equal(res.Record.LastStudyDate))
	assert.False(t, res.Transition.DayRolled)

	stored := f.get(t, "u1")
	assert.Equal(t, int64(2*hour), stored.TotalTime)
	assert.Equal(t, []shared.EventType{shared.EventSessionRecorded}, f.events.types())
}

func TestRecordSession_NextDayExtendsStreak(t *testing.T) {
	f := newFixture()
	h := NewRecordSessionHandler(f.deps)
	ctx := context.Background()

	_, err := h.Handle(ctx, RecordSessionCommand{UserID: "u1", DurationMs: 6 * hour, EndedAt: day1})
	require.NoError(t, err)
	res, err := h.Handle(ctx, RecordSessionCommand{UserID: "u1", DurationMs: hour, EndedAt: day1.AddDate(0, 0, 1)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Record.CurrentStreak)
	assert.Equal(t, []study.HistoryEntry{{Date: "2024-06-10", Ms: 6 * hour}}, res.Record.History)
	assert.Equal(t, int64(hour), res.Record.DailyTime)
	assert.Equal(t, []shared.EventType{
		shared.EventSessionRecorded,
		shared.EventDayClosed,
		shared.EventStreakExtended,
		shared.EventSessionRecorded,
	}, f.events.types())
}

func TestRecordSession_GapBreaksStreak(t *testing.T) {
	f := newFixture()
	rec := study.NewStudyRecord("u1")
	rec.CurrentStreak = 4
	rec.DailyTime = 7 * hour
	rec.TotalTime = 7 * hour
	rec.LastStudyDate = day1
	require.NoError(t, f.repo.Save(context.Background(), "u1", rec))

	res, err := NewRecordSessionHandler(f.deps).Handle(context.Background(),
		RecordSessionCommand{UserID: "u1", DurationMs: hour, EndedAt: day1.AddDate(0, 0, 3)})
	require.NoError(t, err)
	assert.Zero(t, res.Record.CurrentStreak)
	assert.Contains(t, f.events.types(), shared.EventStreakBroken)

	var broken shared.StreakChangedEvent
	for _, e := range f.events.events {
		if e.EventType() == shared.EventStreakBroken {
			broken = e.(shared.StreakChangedEvent)
		}
	}
	assert.Equal(t, 2, broken.DaysMissed)
	assert.Equal(t, 4, broken.PreviousStreak)
}

func TestRecordSession_Validation(t *testing.T) {
	f := newFixture()
	h := NewRecordSessionHandler(f.deps)

	_, err := h.Handle(context.Background(), RecordSessionCommand{UserID: "u1", DurationMs: 0})
	assert.True(t, shared.IsInvalidInput(err))

	_, err = h.Handle(context.Background(), RecordSessionCommand{UserID: "", DurationMs: hour})
	assert.True(t, shared.IsInvalidInput(err))

	for _, d := range []int64{study.MaxSessionMs + 1, math.MaxInt64} {
		_, err = h.Handle(context.Background(), RecordSessionCommand{UserID: "u1", DurationMs: d})
		assert.ErrorIs(t, err, shared.ErrSessionTooLong)
		assert.True(t, shared.IsInvalidInput(err))
	}

	assert.Zero(t, f.repo.Len())
	assert.Empty(t, f.events.types())
}

func TestRecordSession_StorageFailureLeavesNoState(t *testing.T) {
	f := newFixture()
	f.repo.FailWith(errors.New("disk full"))

	_, err := NewRecordSessionHandler(f.deps).Handle(context.Background(), RecordSessionCommand{UserID: "u1", DurationMs: hour})
	assert.True(t, shared.IsStorage(err))
	assert.Empty(t, f.events.types())

	f.repo.FailWith(nil)
	assert.Zero(t, f.get(t, "u1").TotalTime)
}

func TestRecordSession_RetriesTransientStorageErrors(t *testing.T) {
	f := newFixture()
	flaky := &flakyRepo{RecordRepository: f.repo, failures: 2}
	f.deps.Records = flaky
	f.deps.Retrier = retry.New(retry.WithMaxAttempts(3), retry.WithDelays(time.Millisecond, time.Millisecond))

	res, err := NewRecordSessionHandler(f.deps).Handle(context.Background(), RecordSessionCommand{UserID: "u1", DurationMs: hour})
	require.NoError(t, err)
	assert.Equal(t, int64(hour), res.Record.TotalTime)
	assert.Equal(t, int64(hour), f.get(t, "u1").TotalTime)
}

func TestRecordSession_ConcurrentSessionsAreSerialized(t *testing.T) {
	f := newFixture()
	h := NewRecordSessionHandler(f.deps)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(context.Background(), RecordSessionCommand{UserID: "u1", DurationMs: 60_000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec := f.get(t, "u1")
	assert.Equal(t, int64(50*60_000), rec.TotalTime)
	assert.Equal(t, int64(50*60_000), rec.DailyTime)
}

// flakyRepo fails the first Save calls with a storage error.
type flakyRepo struct {
	*memory.RecordRepository
	mu       sync.Mutex
	failures int
}

func (r *flakyRepo) Save(ctx context.Context, userID string, rec *study.StudyRecord) error {
	r.mu.Lock()
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return shared.StorageError("Save", errors.New("connection reset"))
	}
	return r.RecordRepository.Save(ctx, userID, rec)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSFER TIME
// ══════════════════════════════════════════════════════════════════════════════

func TestTransferTime_Success(t *testing.T) {
	f := newFixture()
	rec := study.NewStudyRecord("alice")
	rec.TotalTime = 5 * hour
	rec.DailyTime = 2 * hour
	rec.CurrentStreak = 3
	rec.LastStudyDate = day1
	require.NoError(t, f.repo.Save(context.Background(), "alice", rec))

	res, err := NewTransferTimeHandler(f.deps).Handle(context.Background(),
		TransferTimeCommand{SenderID: "alice", ReceiverID: "bob", Hours: 1.5})
	require.NoError(t, err)
	assert.Equal(t, int64(5_400_000), res.AmountMs)
	assert.Equal(t, int64(5*hour-5_400_000), res.SenderTotal)
	assert.Equal(t, int64(5_400_000), res.ReceiverTotal)

	alice := f.get(t, "alice")
	assert.Equal(t, int64(5*hour-5_400_000), alice.TotalTime)
	assert.Equal(t, int64(2*hour), alice.DailyTime)
	assert.Equal(t, 3, alice.CurrentStreak)

	bob := f.get(t, "bob")
	assert.Equal(t, int64(5_400_000), bob.TotalTime)
	assert.Zero(t, bob.DailyTime)
	assert.Zero(t, bob.CurrentStreak)
	assert.Equal(t, []shared.EventType{shared.EventTimeTransferred}, f.events.types())
}

func TestTransferTime_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cmd   TransferTimeCommand
		check func(error) bool
	}{
		{"zero hours", TransferTimeCommand{SenderID: "a", ReceiverID: "b", Hours: 0}, shared.IsInvalidInput},
		{"negative hours", TransferTimeCommand{SenderID: "a", ReceiverID: "b", Hours: -1}, shared.IsInvalidInput},
		{"missing receiver", TransferTimeCommand{SenderID: "a", Hours: 1}, shared.IsInvalidInput},
		{"missing sender", TransferTimeCommand{ReceiverID: "b", Hours: 1}, shared.IsInvalidInput},
		{"self", TransferTimeCommand{SenderID: "a", ReceiverID: "a", Hours: 1}, shared.IsInvalidTarget},
		{"insufficient", TransferTimeCommand{SenderID: "a", ReceiverID: "b", Hours: 3}, shared.IsInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.seed(t, "a", 2*hour)

			_, err := NewTransferTimeHandler(f.deps).Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
			assert.Equal(t, int64(2*hour), f.get(t, "a").TotalTime)
			assert.Empty(t, f.events.types())
		})
	}
}

func TestTransferTime_ExactBalance(t *testing.T) {
	f := newFixture()
	f.seed(t, "a", 2*hour)

	res, err := NewTransferTimeHandler(f.deps).Handle(context.Background(),
		TransferTimeCommand{SenderID: "a", ReceiverID: "b", Hours: 2})
	require.NoError(t, err)
	assert.Zero(t, res.SenderTotal)
}

func TestTransferTime_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	f := newFixture()
	f.seed(t, "a", 100*hour)
	f.seed(t, "b", 100*hour)
	h := NewTransferTimeHandler(f.deps)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.Handle(ctx, TransferTimeCommand{SenderID: "a", ReceiverID: "b", Hours: 1})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.Handle(ctx, TransferTimeCommand{SenderID: "b", ReceiverID: "a", Hours: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200*hour), f.get(t, "a").TotalTime+f.get(t, "b").TotalTime)
	assert.Equal(t, int64(100*hour), f.get(t, "a").TotalTime)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKING
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionHandler_StartStop(t *testing.T) {
	f := newFixture()
	h := NewSessionHandler(f.deps, 12*time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "u1", StartedAt: day1}))
	assert.ErrorIs(t, h.Start(ctx, StartSessionCommand{UserID: "u1"}), shared.ErrSessionAlreadyActive)

	res, err := h.Stop(ctx, StopSessionCommand{UserID: "u1", EndedAt: day1.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, res.Recorded)
	assert.False(t, res.Capped)
	assert.Equal(t, int64(90*60_000), f.get(t, "u1").TotalTime)

	_, err = h.Stop(ctx, StopSessionCommand{UserID: "u1"})
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, []shared.EventType{shared.EventSessionStarted, shared.EventSessionRecorded}, f.events.types())
}

func TestSessionHandler_StopImmediatelyRecordsNothing(t *testing.T) {
	f := newFixture()
	h := NewSessionHandler(f.deps, 0)
	ctx := context.Background()

	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "u1", StartedAt: day1}))
	res, err := h.Stop(ctx, StopSessionCommand{UserID: "u1", EndedAt: day1})
	require.NoError(t, err)
	assert.Nil(t, res.Recorded)
	assert.Zero(t, f.repo.Len())
}

func TestSessionHandler_CloseStaleCaps(t *testing.T) {
	f := newFixture()
	h := NewSessionHandler(f.deps, 2*time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "stale", StartedAt: day1.Add(-5 * time.Hour)}))
	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "fresh", StartedAt: day1.Add(-time.Hour)}))

	closed, err := h.CloseStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	stale := f.get(t, "stale")
	assert.Equal(t, int64(2*hour), stale.TotalTime)
	assert.True(t, day1.Add(-3*time.Hour).Equal(stale.LastStudyDate))

	open, err := f.deps.Sessions.List(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "fresh", open[0].UserID)
}

func TestSessionHandler_StopKeepsSessionWhenRecordFails(t *testing.T) {
	f := newFixture()
	h := NewSessionHandler(f.deps, 12*time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "u1", StartedAt: day1}))
	f.repo.FailWith(errors.New("disk full"))

	_, err := h.Stop(ctx, StopSessionCommand{UserID: "u1", EndedAt: day1.Add(2 * time.Hour)})
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))

	open, err := f.deps.Sessions.List(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "u1", open[0].UserID)
	assert.True(t, day1.Equal(open[0].StartedAt))

	f.repo.FailWith(nil)
	res, err := h.Stop(ctx, StopSessionCommand{UserID: "u1", EndedAt: day1.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, res.Recorded)
	assert.Equal(t, int64(2*hour), f.get(t, "u1").TotalTime)
	assert.Equal(t, []shared.EventType{shared.EventSessionStarted, shared.EventSessionRecorded}, f.events.types())
}

func TestSessionHandler_CloseStaleKeepsSessionsWhenRecordFails(t *testing.T) {
	f := newFixture()
	h := NewSessionHandler(f.deps, 2*time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "a", StartedAt: day1.Add(-5 * time.Hour)}))
	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "b", StartedAt: day1.Add(-4 * time.Hour)}))
	f.repo.FailWith(errors.New("disk full"))

	closed, err := h.CloseStale(ctx)
	require.Error(t, err)
	assert.Zero(t, closed)

	open, err := f.deps.Sessions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	f.repo.FailWith(nil)
	closed, err = h.CloseStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)
	assert.Equal(t, int64(2*hour), f.get(t, "a").TotalTime)
	assert.Equal(t, int64(2*hour), f.get(t, "b").TotalTime)
}

func TestSessionHandler_UncappedStopStillHonoursDayLimit(t *testing.T) {
	f := newFixture()
	h := NewSessionHandler(f.deps, 0)
	ctx := context.Background()

	require.NoError(t, h.Start(ctx, StartSessionCommand{UserID: "u1", StartedAt: day1}))
	res, err := h.Stop(ctx, StopSessionCommand{UserID: "u1", EndedAt: day1.Add(30 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.Equal(t, int64(study.MaxSessionMs), res.DurationMs)
	assert.Equal(t, int64(study.MaxSessionMs), f.get(t, "u1").TotalTime)
}
