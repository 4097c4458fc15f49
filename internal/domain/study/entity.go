// Package study contains the per-user study record and the session ledger
// that turns completed sessions into daily totals, streaks and history.
// This is a pure domain layer; persistence lives in infrastructure.
package study

import (
	"sort"
	"time"
)

// HistoryEntry is one closed calendar day.
type HistoryEntry struct {
	Date string `json:"date"` // YYYY-MM-DD in the ledger's calendar
	Ms   int64  `json:"ms"`
}

// RawSession is a completed session kept for busiest-interval analysis.
type RawSession struct {
	StartTime  time.Time
	DurationMs int64
}

// End returns when the session finished.
func (s RawSession) End() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMs) * time.Millisecond)
}

// StudyRecord is the per-user aggregate owned by the ledger.
type StudyRecord struct {
	UserID string

	// TotalTime is accumulated over all time; only transfers decrease it.
	TotalTime int64

	// DailyTime belongs to the currently open calendar day.
	DailyTime int64

	// CurrentStreak counts consecutive closed days that met the daily target.
	CurrentStreak int

	// LastStudyDate is the most recent session end. Zero means never studied.
	LastStudyDate time.Time

	// History holds one entry per closed day, in chronological order.
	History []HistoryEntry

	// RawSessions are the sessions inside the retention window.
	RawSessions []RawSession
}

// NewStudyRecord creates the zero record for a user.
func NewStudyRecord(userID string) *StudyRecord {
	return &StudyRecord{
		UserID:      userID,
		History:     []HistoryEntry{},
		RawSessions: []RawSession{},
	}
}

// HasPriorActivity reports whether any session was ever recorded.
func (r *StudyRecord) HasPriorActivity() bool {
	return !r.LastStudyDate.IsZero()
}

// HistoryMs returns the archived value for a day key.
func (r *StudyRecord) HistoryMs(date string) (int64, bool) {
	for _, e := range r.History {
		if e.Date == date {
			return e.Ms, true
		}
	}
	return 0, false
}

// HistoryByDate indexes the history by day key.
func (r *StudyRecord) HistoryByDate() map[string]int64 {
	m := make(map[string]int64, len(r.History))
	for _, e := range r.History {
		m[e.Date] += e.Ms
	}
	return m
}

// HistoryTotal sums every archived day.
func (r *StudyRecord) HistoryTotal() int64 {
	var sum int64
	for _, e := range r.History {
		sum += e.Ms
	}
	return sum
}

// archive adds ms under date. An existing entry for the same day is
// merged, so a day never appears twice.
func (r *StudyRecord) archive(date string, ms int64) {
	for i := range r.History {
		if r.History[i].Date == date {
			r.History[i].Ms += ms
			return
		}
	}
	r.History = append(r.History, HistoryEntry{Date: date, Ms: ms})
}

// Clone returns a deep copy.
func (r *StudyRecord) Clone() *StudyRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.History = append([]HistoryEntry(nil), r.History...)
	c.RawSessions = append([]RawSession(nil), r.RawSessions...)
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
	if c.RawSessions == nil {
		c.RawSessions = []RawSession{}
	}
	return &c
}

// NormalizeHistory merges duplicate days, drops empty entries and sorts by date.
func NormalizeHistory(entries []HistoryEntry) []HistoryEntry {
	merged := make(map[string]int64, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Date == "" {
			continue
		}
		if _, ok := merged[e.Date]; !ok {
			order = append(order, e.Date)
		}
		merged[e.Date] += e.Ms
	}

	// YYYY-MM-DD keys sort chronologically as strings.
	sort.Strings(order)

	out := make([]HistoryEntry, 0, len(order))
	for _, d := range order {
		if merged[d] <= 0 {
			continue
		}
		out = append(out, HistoryEntry{Date: d, Ms: merged[d]})
	}
	return out
}
