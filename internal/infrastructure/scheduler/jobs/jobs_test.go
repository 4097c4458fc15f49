package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/pkg/logger"
)

type recorder struct{ events []shared.Event }

func (r *recorder) Publish(e shared.Event) error {
	r.events = append(r.events, e)
	return nil
}

type scriptedRebuilder struct {
	tops [][]string
	fail map[leaderboard.Mode]error
	call int
}

func (r *scriptedRebuilder) Rebuild(_ context.Context, mode leaderboard.Mode) (*leaderboard.Snapshot, error) {
	if err := r.fail[mode]; err != nil {
		return nil, err
	}
	ranking := leaderboard.NewRanking()
	ids := r.tops[min(r.call, len(r.tops)-1)]
	r.call++
	for i, id := range ids {
		_ = ranking.Add(&leaderboard.Entry{UserID: id, Score: float64(len(ids) - i)})
	}
	ranking.SortByScore()
	return leaderboard.NewSnapshot(ranking, 10, mode, time.Now()), nil
}

func TestRebuildLeaderboardJob_ReportsTopChanges(t *testing.T) {
	reb := &scriptedRebuilder{tops: [][]string{{"a", "b"}, {"a", "c"}}}
	pub := &recorder{}
	job := NewRebuildLeaderboardJob(reb, []leaderboard.Mode{leaderboard.ModeLinear}, pub, logger.Discard())

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, job.LastStats().Entered)

	require.NoError(t, job.Run(context.Background()))
	stats := job.LastStats()
	assert.Equal(t, []string{"c"}, stats.Entered)
	assert.Equal(t, []string{"b"}, stats.Left)
	assert.Equal(t, 2, stats.Eligible)

	require.Len(t, pub.events, 2)
	assert.Equal(t, shared.EventLeaderboardRebuilt, pub.events[0].EventType())
}

func TestRebuildLeaderboardJob_ContinuesAfterModeFailure(t *testing.T) {
	boom := errors.New("list failed")
	reb := &scriptedRebuilder{
		tops: [][]string{{"a"}},
		fail: map[leaderboard.Mode]error{leaderboard.ModeLinear: boom},
	}
	pub := &recorder{}
	job := NewRebuildLeaderboardJob(reb, []leaderboard.Mode{leaderboard.ModeLinear, leaderboard.ModeMultiplicative}, pub, logger.Discard())

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, job.LastStats().Snapshots)
	assert.Len(t, pub.events, 1)
}

type fakeCloser struct {
	closed int
	err    error
}

func (f fakeCloser) CloseStale(context.Context) (int, error) { return f.closed, f.err }

func TestCloseStaleSessionsJob(t *testing.T) {
	job := NewCloseStaleSessionsJob(fakeCloser{closed: 2}, logger.Discard())
	assert.Equal(t, "close_stale_sessions", job.Name())
	assert.NoError(t, job.Run(context.Background()))

	boom := errors.New("redis down")
	job = NewCloseStaleSessionsJob(fakeCloser{err: boom}, logger.Discard())
	assert.ErrorIs(t, job.Run(context.Background()), boom)
}
