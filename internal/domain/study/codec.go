package study

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyhub/studyhub/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// Storage document
// ═══════════════════════════════════════════════════════════════════════════

// Document is the persisted JSON shape of a record. Timestamps are epoch
// milliseconds and 0 means "never". History is kept raw so the legacy
// numeric form can be migrated on load.
type Document struct {
	TotalTime     int64           `json:"totalTime"`
	DailyTime     int64           `json:"dailyTime"`
	CurrentStreak int             `json:"currentStreak"`
	LastStudyDate int64           `json:"lastStudyDate"`
	History       json.RawMessage `json:"history,omitempty"`
	RawSessions   []SessionDoc    `json:"rawSessions,omitempty"`
}

// SessionDoc is the persisted form of a raw session.
type SessionDoc struct {
	StartTime  int64 `json:"startTime"`
	DurationMs int64 `json:"durationMs"`
}

// ToDocument converts a record into its persisted form.
func ToDocument(r *StudyRecord) (Document, error) {
	history := r.History
	if history == nil {
		history = []HistoryEntry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return Document{}, fmt.Errorf("marshal history: %w", err)
	}

	doc := Document{
		TotalTime:     r.TotalTime,
		DailyTime:     r.DailyTime,
		CurrentStreak: r.CurrentStreak,
		LastStudyDate: timeutil.ToEpochMs(r.LastStudyDate),
		History:       raw,
		RawSessions:   EncodeSessions(r.RawSessions),
	}
	return doc, nil
}

// FromDocument rebuilds a record. Legacy numeric history is migrated in the
// process; migrated reports whether that happened so the caller can persist
// the canonical form.
func FromDocument(userID string, doc Document, cal timeutil.Calendar, now time.Time) (rec *StudyRecord, migrated bool, err error) {
	last := timeutil.FromEpochMs(doc.LastStudyDate)

	history, migrated, err := DecodeHistory(doc.History, last, cal, now)
	if err != nil {
		return nil, false, err
	}

	rec = &StudyRecord{
		UserID:        userID,
		TotalTime:     nonNegative(doc.TotalTime),
		DailyTime:     nonNegative(doc.DailyTime),
		CurrentStreak: int(nonNegative(int64(doc.CurrentStreak))),
		LastStudyDate: last,
		History:       history,
		RawSessions:   DecodeSessions(doc.RawSessions),
	}
	return rec, migrated, nil
}

// EncodeSessions converts raw sessions to their persisted form.
func EncodeSessions(sessions []RawSession) []SessionDoc {
	out := make([]SessionDoc, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionDoc{StartTime: s.StartTime.UnixMilli(), DurationMs: s.DurationMs})
	}
	return out
}

// DecodeSessions converts persisted sessions, dropping malformed ones.
func DecodeSessions(docs []SessionDoc) []RawSession {
	out := make([]RawSession, 0, len(docs))
	for _, d := range docs {
		if d.StartTime <= 0 || d.DurationMs <= 0 {
			continue
		}
		out = append(out, RawSession{StartTime: time.UnixMilli(d.StartTime), DurationMs: d.DurationMs})
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// History migration
// ═══════════════════════════════════════════════════════════════════════════

// DecodeHistory parses a history array in either the canonical
// [{"date","ms"}] form or the legacy form of bare millisecond numbers.
//
// Legacy element i of n is dated n-i days before lastStudyDate (now when
// the record never studied), so the last element is the day before the
// last session. The result is always normalized.
func DecodeHistory(raw json.RawMessage, lastStudyDate time.Time, cal timeutil.Calendar, now time.Time) ([]HistoryEntry, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []HistoryEntry{}, false, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decode history: %w", err)
	}

	anchor := lastStudyDate
	if anchor.IsZero() {
		anchor = now
	}

	entries := make([]HistoryEntry, 0, len(items))
	migrated := false
	n := len(items)

	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}

		if item[0] == '{' {
			var e HistoryEntry
			if err := json.Unmarshal(item, &e); err != nil {
				return nil, false, fmt.Errorf("decode history entry %d: %w", i, err)
			}
			entries = append(entries, e)
			continue
		}

		var ms float64
		if err := json.Unmarshal(item, &ms); err != nil {
			return nil, false, fmt.Errorf("decode legacy history entry %d: %w", i, err)
		}
		migrated = true
		entries = append(entries, HistoryEntry{
			Date: cal.DayKey(cal.AddDays(anchor, -(n - i))),
			Ms:   int64(ms),
		})
	}

	return NormalizeHistory(entries), migrated, nil
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
