// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"log/slog"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/keylock"
	"github.com/studyhub/studyhub/pkg/retry"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// Deps are the collaborators shared by every command handler.
type Deps struct {
	Records   study.Repository
	Ledger    *study.Ledger
	Locks     *keylock.Locker
	Sessions  study.SessionTracker // only needed by session tracking commands
	Publisher shared.EventPublisher
	Retrier   *retry.Retrier // wraps each read-modify-write; nil means one attempt
	Clock     timeutil.Clock
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Retrier == nil {
		d.Retrier = retry.New(retry.WithMaxAttempts(1))
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// TransferAuditor is implemented by stores that keep a transfer log.
type TransferAuditor interface {
	LogTransfer(ctx context.Context, senderID, receiverID string, amountMs int64) error
}

// publishAll hands events to the publisher. Publishing is best effort:
// the state change is already persisted.
func publishAll(p shared.EventPublisher, log *slog.Logger, events []shared.Event) {
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			log.Warn("failed to publish event",
				slog.String("event_type", string(e.EventType())),
				slog.String("aggregate_id", e.AggregateID()),
				slog.String("error", err.Error()),
			)
		}
	}
}
