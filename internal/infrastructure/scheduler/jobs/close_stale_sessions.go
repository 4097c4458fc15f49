package jobs

import (
	"context"
	"log/slog"
)

// StaleSessionCloser stops sessions open longer than the maximum session length.
type StaleSessionCloser interface {
	CloseStale(ctx context.Context) (int, error)
}

// CloseStaleSessionsJob records sessions whose clients never sent a stop.
type CloseStaleSessionsJob struct {
	closer StaleSessionCloser
	logger *slog.Logger
}

// NewCloseStaleSessionsJob creates the job.
func NewCloseStaleSessionsJob(closer StaleSessionCloser, logger *slog.Logger) *CloseStaleSessionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloseStaleSessionsJob{closer: closer, logger: logger.With(slog.String("job", "close_stale_sessions"))}
}

// Name returns the job name.
func (j *CloseStaleSessionsJob) Name() string {
	return "close_stale_sessions"
}

// Description returns a human-readable description.
func (j *CloseStaleSessionsJob) Description() string {
	return "Closes tracked sessions that exceeded the maximum session length"
}

// Run closes stale sessions. Sessions closed before a failure stay recorded.
func (j *CloseStaleSessionsJob) Run(ctx context.Context) error {
	closed, err := j.closer.CloseStale(ctx)
	if closed > 0 {
		j.logger.Info("stale sessions closed", "count", closed)
	}
	return err
}
