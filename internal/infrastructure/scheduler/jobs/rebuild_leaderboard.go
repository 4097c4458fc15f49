// Package jobs contains the scheduled jobs of StudyHub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// Rebuilder recomputes a leaderboard snapshot and stores it in the cache.
type Rebuilder interface {
	Rebuild(ctx context.Context, mode leaderboard.Mode) (*leaderboard.Snapshot, error)
}

// RebuildLeaderboardJob keeps cached snapshots warm so reads rarely hit ListAll,
// and reports who entered or left the top since the previous run.
type RebuildLeaderboardJob struct {
	rebuilder Rebuilder
	modes     []leaderboard.Mode
	publisher shared.EventPublisher
	logger    *slog.Logger

	mu       sync.Mutex
	previous map[leaderboard.Mode]*leaderboard.Snapshot
	last     *RebuildStats
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Snapshots int
	Eligible  int
	Entered   []string // user ids new to the top of the default mode
	Left      []string
}

// NewRebuildLeaderboardJob creates the job. The first mode is the one
// whose top changes are reported.
func NewRebuildLeaderboardJob(rebuilder Rebuilder, modes []leaderboard.Mode, publisher shared.EventPublisher, logger *slog.Logger) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if len(modes) == 0 {
		modes = []leaderboard.Mode{leaderboard.ModeLinear}
	}
	return &RebuildLeaderboardJob{
		rebuilder: rebuilder,
		modes:     modes,
		publisher: publisher,
		logger:    logger.With(slog.String("job", "rebuild_leaderboard")),
		previous:  make(map[leaderboard.Mode]*leaderboard.Snapshot),
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Recomputes leaderboard snapshots for every ranking mode"
}

// Run rebuilds each mode. A failing mode does not stop the others.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	stats := &RebuildStats{StartedAt: time.Now()}

	var errs []error
	for i, mode := range j.modes {
		snap, err := j.rebuilder.Rebuild(ctx, mode)
		if err != nil {
			errs = append(errs, fmt.Errorf("mode %s: %w", mode, err))
			continue
		}
		stats.Snapshots++
		stats.Eligible = snap.Eligible

		j.mu.Lock()
		prev := j.previous[mode]
		j.previous[mode] = snap
		j.mu.Unlock()

		if i == 0 && prev != nil {
			stats.Entered, stats.Left = topChanges(prev, snap)
		}

		if err := j.publisher.Publish(shared.NewLeaderboardRebuiltEvent(snap.ID, len(snap.Entries), string(mode), snap.GeneratedAt)); err != nil {
			j.logger.Warn("failed to publish leaderboard rebuilt event", slog.String("error", err.Error()))
		}
	}
	stats.Duration = time.Since(stats.StartedAt)

	j.mu.Lock()
	j.last = stats
	j.mu.Unlock()

	if len(stats.Entered) > 0 || len(stats.Left) > 0 {
		j.logger.Info("leaderboard top changed", "entered", stats.Entered, "left", stats.Left)
	}
	j.logger.Debug("leaderboard rebuilt", "snapshots", stats.Snapshots, "eligible", stats.Eligible, "duration", stats.Duration.String())

	return errors.Join(errs...)
}

// LastStats returns the statistics of the most recent run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// topChanges returns users present only in curr's top and only in prev's top.
func topChanges(prev, curr *leaderboard.Snapshot) (entered, left []string) {
	for _, e := range curr.Entries {
		if prev.Find(e.UserID) == nil {
			entered = append(entered, e.UserID)
		}
	}
	for _, e := range prev.Entries {
		if curr.Find(e.UserID) == nil {
			left = append(left, e.UserID)
		}
	}
	return entered, left
}
