// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на изменения записей и запускают побочные
// эффекты: сброс кеша рейтинга и журналирование.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
)

// Subscriber - часть шины событий, нужная для регистрации обработчиков.
type Subscriber interface {
	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
}

// ═══════════════════════════════════════════════════════════════════════════
// ON RECORDS CHANGED HANDLER
// Любое изменение записи делает закешированный рейтинг устаревшим.
// ═══════════════════════════════════════════════════════════════════════════

// OnRecordsChangedHandler сбрасывает кеш снапшотов рейтинга.
type OnRecordsChangedHandler struct {
	cache   leaderboard.SnapshotCache
	timeout time.Duration
	logger  *slog.Logger
}

// NewOnRecordsChangedHandler создаёт обработчик. timeout ограничивает обращение к кешу.
func NewOnRecordsChangedHandler(cache leaderboard.SnapshotCache, timeout time.Duration, logger *slog.Logger) *OnRecordsChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OnRecordsChangedHandler{
		cache:   cache,
		timeout: timeout,
		logger:  logger.With("handler", "on_records_changed"),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnRecordsChangedHandler) Handle(event shared.Event) error {
	if h.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("failed to invalidate leaderboard cache",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
		return err
	}
	return nil
}

// Register подписывает обработчик на все события, меняющие записи.
func (h *OnRecordsChangedHandler) Register(bus Subscriber) error {
	for _, t := range []shared.EventType{shared.EventSessionRecorded, shared.EventTimeTransferred} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// ON STREAK CHANGED HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// OnStreakChangedHandler журналирует закрытые дни и изменения streak.
type OnStreakChangedHandler struct {
	logger *slog.Logger
}

// NewOnStreakChangedHandler создаёт обработчик.
func NewOnStreakChangedHandler(logger *slog.Logger) *OnStreakChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnStreakChangedHandler{logger: logger.With("handler", "on_streak_changed")}
}

// Handle реализует shared.EventHandler.
func (h *OnStreakChangedHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.DayClosedEvent:
		h.logger.Info("day closed", "user_id", e.UserID, "date", e.Date, "ms", e.Ms)
	case shared.StreakChangedEvent:
		if e.EventType() == shared.EventStreakBroken {
			h.logger.Info("streak broken", "user_id", e.UserID, "previous", e.PreviousStreak, "days_missed", e.DaysMissed)
		} else {
			h.logger.Info("streak extended", "user_id", e.UserID, "streak", e.CurrentStreak)
		}
	}
	return nil
}

// Register подписывает обработчик на события ledger.
func (h *OnStreakChangedHandler) Register(bus Subscriber) error {
	for _, t := range []shared.EventType{shared.EventDayClosed, shared.EventStreakExtended, shared.EventStreakBroken} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
