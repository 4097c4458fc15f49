package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/memory"
	"github.com/studyhub/studyhub/pkg/logger"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

const hour = timeutil.MsPerHour

var now = time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *memory.RecordRepository, userID string, total, daily int64, streak int) {
	t.Helper()
	rec := study.NewStudyRecord(userID)
	rec.TotalTime = total
	rec.DailyTime = daily
	rec.CurrentStreak = streak
	if daily > 0 {
		rec.LastStudyDate = now.Add(-time.Hour)
	}
	require.NoError(t, repo.Save(context.Background(), userID, rec))
}

func newEngine() *stats.Engine {
	return stats.NewEngine(stats.DefaultConfig(), timeutil.NewCalendar(time.UTC))
}

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestUserStats_Summary(t *testing.T) {
	repo := memory.NewRecordRepository()
	seed(t, repo, "u1", 10*hour, 3*hour, 2)
	h := NewUserStatsHandler(repo, newEngine(), timeutil.FixedClock{T: now})

	s, err := h.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 10.0, s.TotalHours)
	assert.Equal(t, 3.0, s.TodayHours)
	assert.Equal(t, 2, s.CurrentStreak)
	assert.Equal(t, 50, s.ProgressPercent)
	assert.True(t, s.HasAnyStudyTime)
}

func TestUserStats_SummaryOfUnknownUserIsZero(t *testing.T) {
	h := NewUserStatsHandler(memory.NewRecordRepository(), newEngine(), timeutil.FixedClock{T: now})

	s, err := h.Summary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, s.TotalMs)
	assert.False(t, s.HasAnyStudyTime)

	_, err = h.Summary(context.Background(), " ")
	assert.True(t, shared.IsInvalidInput(err))
}

func TestUserStats_Series(t *testing.T) {
	repo := memory.NewRecordRepository()
	rec := study.NewStudyRecord("u1")
	rec.History = []study.HistoryEntry{{Date: "2024-06-08", Ms: 2 * hour}}
	rec.DailyTime = hour
	rec.TotalTime = 3 * hour
	rec.LastStudyDate = now.Add(-time.Hour)
	require.NoError(t, repo.Save(context.Background(), "u1", rec))

	h := NewUserStatsHandler(repo, newEngine(), timeutil.FixedClock{T: now})

	dto, err := h.Series(context.Background(), "u1", 7)
	require.NoError(t, err)
	require.Len(t, dto.Points, 7)
	assert.Equal(t, 3.0, dto.Total)
	assert.Equal(t, 1.0, dto.Points[6].Hours)
	assert.Equal(t, 2.0, dto.Points[4].Hours)
	assert.Equal(t, 6.0, dto.TargetHours)

	for _, days := range []int{0, -1, MaxSeriesDays + 1} {
		_, err := h.Series(context.Background(), "u1", days)
		assert.True(t, shared.IsInvalidInput(err), "days=%d", days)
	}
}

func TestUserStats_Intervals(t *testing.T) {
	h := NewUserStatsHandler(memory.NewRecordRepository(), newEngine(), timeutil.FixedClock{T: now})

	dto, err := h.Intervals(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", dto.UserID)
	assert.NotEmpty(t, dto.Summary)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func newLeaderboard(t *testing.T, repo study.Repository, cache leaderboard.SnapshotCache) *LeaderboardHandler {
	t.Helper()
	h, err := NewLeaderboardHandler(LeaderboardDeps{
		Records:  repo,
		Engine:   newEngine(),
		Config:   leaderboard.DefaultConfig(),
		Cache:    cache,
		CacheTTL: time.Minute,
		Clock:    timeutil.FixedClock{T: now},
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	return h
}

func TestLeaderboard_RanksAndLimits(t *testing.T) {
	repo := memory.NewRecordRepository()
	seed(t, repo, "alice", 10*hour, 2*hour, 3)
	seed(t, repo, "bob", 5*hour, hour, 1)
	seed(t, repo, "carol", 0, 0, 0)
	h := newLeaderboard(t, repo, nil)

	snap, err := h.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.ModeLinear, snap.Mode)
	assert.Equal(t, 2, snap.Eligible)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "alice", snap.Entries[0].UserID)
	assert.Equal(t, leaderboard.Rank(1), snap.Entries[0].Rank)
	assert.Nil(t, snap.Find("carol"))

	snap, err = h.Handle(context.Background(), GetLeaderboardQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)

	snap, err = h.Handle(context.Background(), GetLeaderboardQuery{Mode: leaderboard.ModeMultiplicative})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.ModeMultiplicative, snap.Mode)
}

func TestLeaderboard_Errors(t *testing.T) {
	h := newLeaderboard(t, memory.NewRecordRepository(), nil)

	snap, err := h.Handle(context.Background(), GetLeaderboardQuery{})
	assert.True(t, shared.IsNoData(err))
	require.NotNil(t, snap)
	assert.Empty(t, snap.Entries)

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Mode: "weird"})
	assert.True(t, shared.IsInvalidInput(err))

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Limit: -1})
	assert.True(t, shared.IsInvalidInput(err))
}

func TestLeaderboard_UsesCacheUntilInvalidated(t *testing.T) {
	repo := memory.NewRecordRepository()
	seed(t, repo, "alice", 10*hour, 2*hour, 3)
	cache := memory.NewSnapshotCache(timeutil.FixedClock{T: now})
	h := newLeaderboard(t, repo, cache)
	ctx := context.Background()

	first, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)

	seed(t, repo, "bob", 50*hour, 2*hour, 3)
	second, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Eligible)

	fresh, err := h.Handle(ctx, GetLeaderboardQuery{Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Eligible)

	require.NoError(t, h.Invalidate(ctx))
	third, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, "bob", third.Entries[0].UserID)
}

type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) GetSnapshot(context.Context, leaderboard.Mode) (*leaderboard.Snapshot, error) {
	return nil, errCacheDown
}

func (brokenCache) SetSnapshot(context.Context, *leaderboard.Snapshot, time.Duration) error {
	return errCacheDown
}

func (brokenCache) Invalidate(context.Context) error { return errCacheDown }

func TestLeaderboard_FallsBackWhenCacheFails(t *testing.T) {
	repo := memory.NewRecordRepository()
	seed(t, repo, "alice", 10*hour, 2*hour, 3)
	h := newLeaderboard(t, repo, brokenCache{})

	for i := 0; i < 10; i++ {
		snap, err := h.Handle(context.Background(), GetLeaderboardQuery{})
		require.NoError(t, err)
		assert.Equal(t, "alice", snap.Entries[0].UserID)
	}
}

// countingCache всегда падает и считает обращения.
type countingCache struct {
	gets, sets atomic.Int32
}

func (c *countingCache) GetSnapshot(context.Context, leaderboard.Mode) (*leaderboard.Snapshot, error) {
	c.gets.Add(1)
	return nil, errCacheDown
}

func (c *countingCache) SetSnapshot(context.Context, *leaderboard.Snapshot, time.Duration) error {
	c.sets.Add(1)
	return errCacheDown
}

func (c *countingCache) Invalidate(context.Context) error { return errCacheDown }

func TestLeaderboard_OpenBreakerSkipsCache(t *testing.T) {
	repo := memory.NewRecordRepository()
	seed(t, repo, "alice", 10*hour, 2*hour, 3)
	cache := &countingCache{}
	h := newLeaderboard(t, repo, cache)

	for i := 0; i < 10; i++ {
		snap, err := h.Handle(context.Background(), GetLeaderboardQuery{})
		require.NoError(t, err)
		assert.Equal(t, "alice", snap.Entries[0].UserID)
	}

	// Три подряд ошибки открывают breaker, дальше кеш не опрашивается.
	assert.Equal(t, int32(3), cache.gets.Load()+cache.sets.Load())
}

func TestLeaderboard_Breakdown(t *testing.T) {
	repo := memory.NewRecordRepository()
	seed(t, repo, "alice", 10*hour, 2*hour, 3)
	seed(t, repo, "bob", 5*hour, hour, 1)
	h := newLeaderboard(t, repo, nil)

	b, err := h.Breakdown(context.Background(), "bob", "")
	require.NoError(t, err)
	assert.True(t, b.Eligible)
	assert.Equal(t, leaderboard.Rank(2), b.Rank)
	assert.Equal(t, 2, b.Of)
	assert.Equal(t, leaderboard.DefaultWeights(), b.Weights)

	b, err = h.Breakdown(context.Background(), "ghost", leaderboard.ModeMultiplicative)
	require.NoError(t, err)
	assert.False(t, b.Eligible)
	assert.Empty(t, b.LoggedDayHours)

	_, err = h.Breakdown(context.Background(), "", "")
	assert.True(t, shared.IsInvalidInput(err))
}
