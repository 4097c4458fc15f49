package shared

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxUserIDLength bounds opaque user identifiers (Discord snowflakes, logins, UUIDs).
const MaxUserIDLength = 128

// UserID is an opaque user identifier. The ledger never interprets it.
type UserID string

// IsValid checks that the ID is non-empty, trimmed and not oversized.
func (u UserID) IsValid() bool {
	s := string(u)
	return s != "" && s == strings.TrimSpace(s) && utf8.RuneCountInString(s) <= MaxUserIDLength
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrEmptyUserID
	}
	return uid, nil
}

// SortedUserIDs returns the distinct ids in ascending order.
// Locks over several users are always taken in this order.
func SortedUserIDs(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Time Amount Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MsPerHour is the number of milliseconds in one hour.
const MsPerHour = 3_600_000

// Hours is a positive fractional amount of study time.
type Hours float64

// IsValid checks the amount is a finite positive number.
func (h Hours) IsValid() bool {
	f := float64(h)
	return f > 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Millis converts hours to whole milliseconds (round half away from zero).
func (h Hours) Millis() int64 {
	return int64(math.Round(float64(h) * MsPerHour))
}

// NewHours creates a new Hours value with validation.
func NewHours(h float64) (Hours, error) {
	v := Hours(h)
	if !v.IsValid() {
		return 0, ErrNonPositiveHours
	}
	return v, nil
}
