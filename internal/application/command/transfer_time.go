package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSFER TIME COMMAND
// Moves accumulated total time from one user to another. Only TotalTime
// changes: daily time, streaks and history stay as they are.
// ══════════════════════════════════════════════════════════════════════════════

// TransferTimeCommand contains the data for a balance transfer.
type TransferTimeCommand struct {
	SenderID   string
	ReceiverID string
	Hours      float64
}

// Validate validates the command.
func (c TransferTimeCommand) Validate() error {
	if _, err := shared.NewUserID(c.SenderID); err != nil {
		return err
	}
	if c.ReceiverID == "" {
		return shared.ErrMissingReceiver
	}
	if _, err := shared.NewUserID(c.ReceiverID); err != nil {
		return err
	}
	if _, err := shared.NewHours(c.Hours); err != nil {
		return err
	}
	if c.SenderID == c.ReceiverID {
		return shared.ErrSelfTransfer
	}
	return nil
}

// TransferTimeResult contains both balances after the transfer.
type TransferTimeResult struct {
	AmountMs      int64
	SenderTotal   int64
	ReceiverTotal int64
}

// TransferTimeHandler handles the TransferTimeCommand.
type TransferTimeHandler struct {
	deps Deps
}

// NewTransferTimeHandler creates a new TransferTimeHandler.
func NewTransferTimeHandler(deps Deps) *TransferTimeHandler {
	return &TransferTimeHandler{deps: deps.withDefaults()}
}

// Handle locks both users in id order, checks the balance and saves both
// records. A Transactor store saves them atomically; otherwise the sender
// is saved first, so a failure between the writes never creates time.
func (h *TransferTimeHandler) Handle(ctx context.Context, cmd TransferTimeCommand) (*TransferTimeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("transfer_time: %w", err)
	}
	amount := shared.Hours(cmd.Hours).Millis()
	if amount <= 0 {
		return nil, fmt.Errorf("transfer_time: %w", shared.ErrNonPositiveHours)
	}

	unlock, err := h.deps.Locks.LockAll(ctx, shared.SortedUserIDs(cmd.SenderID, cmd.ReceiverID)...)
	if err != nil {
		return nil, fmt.Errorf("transfer_time: lock: %w", err)
	}
	defer unlock()

	var result TransferTimeResult
	err = h.deps.Retrier.Do(ctx, func(ctx context.Context) error {
		sender, err := h.deps.Records.GetOrCreate(ctx, cmd.SenderID)
		if err != nil {
			return err
		}
		if sender.TotalTime < amount {
			return retry.Permanent(shared.ErrNotEnoughBalance)
		}
		receiver, err := h.deps.Records.GetOrCreate(ctx, cmd.ReceiverID)
		if err != nil {
			return err
		}

		sender.TotalTime -= amount
		receiver.TotalTime += amount

		if err := h.save(ctx, sender, receiver); err != nil {
			return err
		}
		result = TransferTimeResult{AmountMs: amount, SenderTotal: sender.TotalTime, ReceiverTotal: receiver.TotalTime}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer_time: %w", err)
	}

	if auditor, ok := h.deps.Records.(TransferAuditor); ok {
		if err := auditor.LogTransfer(ctx, cmd.SenderID, cmd.ReceiverID, amount); err != nil {
			h.deps.Logger.Warn("failed to write transfer audit row", slog.String("error", err.Error()))
		}
	}

	publishAll(h.deps.Publisher, h.deps.Logger, []shared.Event{
		shared.NewTimeTransferredEvent(cmd.SenderID, cmd.ReceiverID, amount, h.deps.Clock.Now()),
	})

	h.deps.Logger.Info("time transferred",
		slog.String("sender_id", cmd.SenderID),
		slog.String("receiver_id", cmd.ReceiverID),
		slog.Int64("amount_ms", amount),
	)
	return &result, nil
}

func (h *TransferTimeHandler) save(ctx context.Context, sender, receiver *study.StudyRecord) error {
	if tx, ok := h.deps.Records.(study.Transactor); ok {
		return tx.SaveAll(ctx, sender, receiver)
	}
	if err := h.deps.Records.Save(ctx, sender.UserID, sender); err != nil {
		return err
	}
	return h.deps.Records.Save(ctx, receiver.UserID, receiver)
}
