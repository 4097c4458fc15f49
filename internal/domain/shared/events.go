package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Ledger events
	EventSessionRecorded EventType = "study.session_recorded"
	EventDayClosed       EventType = "study.day_closed"
	EventStreakExtended  EventType = "study.streak_extended"
	EventStreakBroken    EventType = "study.streak_broken"

	// Session tracking events
	EventSessionStarted EventType = "session.started"

	// Balance events
	EventTimeTransferred EventType = "balance.time_transferred"

	// Leaderboard events
	EventLeaderboardRebuilt EventType = "leaderboard.rebuilt"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns a unique id of this occurrence.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler handles a single event.
type EventHandler func(event Event) error

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionRecordedEvent is emitted after a session was applied and saved.
type SessionRecordedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	DurationMs int64  `json:"duration_ms"`
	DailyTime  int64  `json:"daily_time"`
	TotalTime  int64  `json:"total_time"`
}

// Payload implements Event interface.
func (e SessionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"duration_ms": e.DurationMs,
		"daily_time":  e.DailyTime,
		"total_time":  e.TotalTime,
	}
}

// NewSessionRecordedEvent creates a new SessionRecordedEvent.
func NewSessionRecordedEvent(userID string, durationMs, dailyTime, totalTime int64, at time.Time) SessionRecordedEvent {
	return SessionRecordedEvent{
		BaseEvent:  NewBaseEvent(EventSessionRecorded, userID, at),
		UserID:     userID,
		DurationMs: durationMs,
		DailyTime:  dailyTime,
		TotalTime:  totalTime,
	}
}

// DayClosedEvent is emitted when a day's total was archived into history.
type DayClosedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Ms     int64  `json:"ms"`
}

// Payload implements Event interface.
func (e DayClosedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"date":    e.Date,
		"ms":      e.Ms,
	}
}

// NewDayClosedEvent creates a new DayClosedEvent.
func NewDayClosedEvent(userID, date string, ms int64, at time.Time) DayClosedEvent {
	return DayClosedEvent{
		BaseEvent: NewBaseEvent(EventDayClosed, userID, at),
		UserID:    userID,
		Date:      date,
		Ms:        ms,
	}
}

// StreakChangedEvent is emitted when a day transition extends or breaks a streak.
type StreakChangedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	CurrentStreak  int    `json:"current_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"current_streak":  e.CurrentStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakExtendedEvent creates an event for a streak that grew by one day.
func NewStreakExtendedEvent(userID string, previous, current int, at time.Time) StreakChangedEvent {
	return StreakChangedEvent{
		BaseEvent:      NewBaseEvent(EventStreakExtended, userID, at),
		UserID:         userID,
		PreviousStreak: previous,
		CurrentStreak:  current,
	}
}

// NewStreakBrokenEvent creates an event for a streak reset to zero.
func NewStreakBrokenEvent(userID string, previous, daysMissed int, at time.Time) StreakChangedEvent {
	return StreakChangedEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID, at),
		UserID:         userID,
		PreviousStreak: previous,
		DaysMissed:     daysMissed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a tracked session opens.
type SessionStartedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// Payload implements Event interface.
func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"started_at": e.StartedAt,
	}
}

// NewSessionStartedEvent creates a new SessionStartedEvent.
func NewSessionStartedEvent(userID string, startedAt time.Time) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, userID, startedAt),
		UserID:    userID,
		StartedAt: startedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Balance Events
// ═══════════════════════════════════════════════════════════════════════════

// TimeTransferredEvent is emitted after a successful balance transfer.
type TimeTransferredEvent struct {
	BaseEvent
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Ms         int64  `json:"ms"`
}

// Payload implements Event interface.
func (e TimeTransferredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"sender_id":   e.SenderID,
		"receiver_id": e.ReceiverID,
		"ms":          e.Ms,
	}
}

// NewTimeTransferredEvent creates a new TimeTransferredEvent.
func NewTimeTransferredEvent(senderID, receiverID string, ms int64, at time.Time) TimeTransferredEvent {
	return TimeTransferredEvent{
		BaseEvent:  NewBaseEvent(EventTimeTransferred, senderID, at),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Ms:         ms,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardRebuiltEvent is emitted after the ranking cache was refreshed.
type LeaderboardRebuiltEvent struct {
	BaseEvent
	SnapshotID string `json:"snapshot_id"`
	Entries    int    `json:"entries"`
	Mode       string `json:"mode"`
}

// Payload implements Event interface.
func (e LeaderboardRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"snapshot_id": e.SnapshotID,
		"entries":     e.Entries,
		"mode":        e.Mode,
	}
}

// NewLeaderboardRebuiltEvent creates a new LeaderboardRebuiltEvent.
func NewLeaderboardRebuiltEvent(snapshotID string, entries int, mode string, at time.Time) LeaderboardRebuiltEvent {
	return LeaderboardRebuiltEvent{
		BaseEvent:  NewBaseEvent(EventLeaderboardRebuilt, "leaderboard", at),
		SnapshotID: snapshotID,
		Entries:    entries,
		Mode:       mode,
	}
}
