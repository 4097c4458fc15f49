// Package timeutil provides calendar-day utilities for the study ledger.
// Every day boundary is computed in an explicit *time.Location carried by a
// Calendar value, so the same code works for any local timezone including
// zones with daylight-saving shifts.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Common date/time formats.
const (
	// FormatDate is the calendar day key format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatShortDate is the chart label format (DD/MM).
	FormatShortDate = "02/01"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Duration units in milliseconds.
const (
	MsPerSecond int64 = 1000
	MsPerMinute       = 60 * MsPerSecond
	MsPerHour         = 60 * MsPerMinute
	MsPerDay          = 24 * MsPerHour
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock supplies the current time. Handlers take a Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// Calendar performs day arithmetic in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a calendar for the given location (nil means time.Local).
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

// LoadCalendar resolves an IANA zone name ("" or "Local" means time.Local).
func LoadCalendar(name string) (Calendar, error) {
	switch strings.TrimSpace(name) {
	case "", "Local":
		return NewCalendar(time.Local), nil
	case "UTC":
		return NewCalendar(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewCalendar(loc), nil
}

// Location returns the calendar's location.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// In converts t into the calendar's location.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.Location())
}

// StartOfDay returns local midnight of the day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	l := c.In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.Location())
}

// DayKey maps t to its local calendar date (YYYY-MM-DD).
func (c Calendar) DayKey(t time.Time) string {
	return c.In(t).Format(FormatDate)
}

// ShortLabel formats t as DD/MM.
func (c Calendar) ShortLabel(t time.Time) string {
	return c.In(t).Format(FormatShortDate)
}

// ParseDayKey parses a YYYY-MM-DD key as local midnight.
func (c Calendar) ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, key, c.Location())
}

// AddDays moves t by n calendar days, keeping the wall clock.
func (c Calendar) AddDays(t time.Time, n int) time.Time {
	return c.In(t).AddDate(0, 0, n)
}

// DaysBetween returns the signed number of calendar-day boundaries between
// the day of a and the day of b. Both are normalized to midnight first and
// the difference is rounded, so 23h and 25h DST days count as one.
func (c Calendar) DaysBetween(a, b time.Time) int {
	diff := c.StartOfDay(b).Sub(c.StartOfDay(a))
	return int(math.Round(float64(diff) / float64(24*time.Hour)))
}

// IsSameDay reports whether a and b fall on the same local calendar day.
func (c Calendar) IsSameDay(a, b time.Time) bool {
	return c.DayKey(a) == c.DayKey(b)
}

// IsConsecutiveDay reports whether b is the calendar day after a.
func (c Calendar) IsConsecutiveDay(a, b time.Time) bool {
	return c.DaysBetween(a, b) == 1
}

// ══════════════════════════════════════════════════════════════════════════════
// DURATIONS
// ══════════════════════════════════════════════════════════════════════════════

// HoursToMs converts fractional hours to whole milliseconds, rounding half away from zero.
func HoursToMs(hours float64) int64 {
	return int64(math.Round(hours * float64(MsPerHour)))
}

// MsToHours converts milliseconds to fractional hours.
func MsToHours(ms int64) float64 {
	return float64(ms) / float64(MsPerHour)
}

// FromEpochMs converts epoch milliseconds to time. Zero maps to the zero time.
func FromEpochMs(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToEpochMs converts t to epoch milliseconds. The zero time maps to 0.
func ToEpochMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FormatDuration renders milliseconds as "4d 10h 3m 2s". Zero units are
// skipped except seconds, which are always present.
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "0s"
	}

	days := ms / MsPerDay
	hours := (ms / MsPerHour) % 24
	minutes := (ms / MsPerMinute) % 60
	seconds := (ms / MsPerSecond) % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}

// FormatHours renders hours with two decimals ("7.25h").
func FormatHours(hours float64) string {
	return fmt.Sprintf("%.2fh", hours)
}
