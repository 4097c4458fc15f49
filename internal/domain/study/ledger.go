package study

import (
	"fmt"
	"math"
	"time"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// FirstSessionPolicy decides how a record without prior activity treats its streak.
type FirstSessionPolicy string

const (
	// FirstSessionLenient never touches the streak of a record with no prior activity.
	FirstSessionLenient FirstSessionPolicy = "lenient"

	// FirstSessionStrict clears any stale streak on a record with no prior activity.
	FirstSessionStrict FirstSessionPolicy = "strict"
)

// IsValid checks if the policy is known.
func (p FirstSessionPolicy) IsValid() bool {
	return p == FirstSessionLenient || p == FirstSessionStrict
}

// LedgerConfig contains the ledger's tunables.
type LedgerConfig struct {
	// MinHoursForStreak is the daily target; a closed day at or above it extends the streak.
	MinHoursForStreak float64

	// RawSessionRetentionDays bounds how many calendar days of raw sessions are kept.
	// Zero disables raw session recording.
	RawSessionRetentionDays int

	// FirstSessionPolicy, lenient by default.
	FirstSessionPolicy FirstSessionPolicy
}

// DefaultLedgerConfig returns the default ledger configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MinHoursForStreak:       6,
		RawSessionRetentionDays: 30,
		FirstSessionPolicy:      FirstSessionLenient,
	}
}

// Validate checks the configuration.
func (c LedgerConfig) Validate() error {
	if c.MinHoursForStreak <= 0 || math.IsNaN(c.MinHoursForStreak) || c.MinHoursForStreak > 24 {
		return shared.NewDomainError("study", "Config", shared.ErrInvalidInput,
			fmt.Sprintf("min hours for streak must be in (0, 24], got %v", c.MinHoursForStreak))
	}
	if c.RawSessionRetentionDays < 0 {
		return shared.NewDomainError("study", "Config", shared.ErrInvalidInput,
			"raw session retention cannot be negative")
	}
	if !c.FirstSessionPolicy.IsValid() {
		return shared.NewDomainError("study", "Config", shared.ErrInvalidInput,
			fmt.Sprintf("unknown first session policy %q", c.FirstSessionPolicy))
	}
	return nil
}

// DailyTargetMs returns the daily target in milliseconds.
func (c LedgerConfig) DailyTargetMs() int64 {
	return timeutil.HoursToMs(c.MinHoursForStreak)
}

// Transition describes what one Apply call did to a record.
type Transition struct {
	DaysElapsed int  // calendar days since the previous session
	DayRolled   bool // at least one day boundary was crossed

	ArchivedDay string // day key written to history, empty if nothing was archived
	ArchivedMs  int64

	StreakBefore int
	StreakAfter  int
}

// StreakExtended reports whether the closed day extended the streak.
func (t Transition) StreakExtended() bool {
	return t.StreakAfter > t.StreakBefore
}

// StreakBroken reports whether a positive streak was reset.
func (t Transition) StreakBroken() bool {
	return t.StreakBefore > 0 && t.StreakAfter == 0
}

// Ledger applies completed sessions to study records.
type Ledger struct {
	cfg LedgerConfig
	cal timeutil.Calendar
}

// NewLedger creates a ledger. Invalid configuration falls back to defaults field by field.
func NewLedger(cfg LedgerConfig, cal timeutil.Calendar) *Ledger {
	def := DefaultLedgerConfig()
	if cfg.MinHoursForStreak <= 0 {
		cfg.MinHoursForStreak = def.MinHoursForStreak
	}
	if cfg.RawSessionRetentionDays < 0 {
		cfg.RawSessionRetentionDays = def.RawSessionRetentionDays
	}
	if !cfg.FirstSessionPolicy.IsValid() {
		cfg.FirstSessionPolicy = def.FirstSessionPolicy
	}
	return &Ledger{cfg: cfg, cal: cal}
}

// Config returns the effective configuration.
func (l *Ledger) Config() LedgerConfig {
	return l.cfg
}

// Calendar returns the ledger's calendar.
func (l *Ledger) Calendar() timeutil.Calendar {
	return l.cal
}

// MaxSessionMs is the longest single session Apply accepts.
const MaxSessionMs = timeutil.MsPerDay

// Apply records one completed session of durationMs ending at now.
// The record is mutated in memory only; the caller saves it once.
func (l *Ledger) Apply(rec *StudyRecord, durationMs int64, now time.Time) (Transition, error) {
	if rec == nil {
		return Transition{}, shared.NewDomainError("study", "Apply", shared.ErrInvalidInput, "record is nil")
	}
	if durationMs <= 0 {
		return Transition{}, shared.ErrNonPositiveDelta
	}
	if durationMs > MaxSessionMs {
		return Transition{}, shared.ErrSessionTooLong
	}

	t := Transition{StreakBefore: rec.CurrentStreak}

	hadActivity := rec.HasPriorActivity()
	last := rec.LastStudyDate
	if !hadActivity {
		last = now
		if l.cfg.FirstSessionPolicy == FirstSessionStrict {
			rec.CurrentStreak = 0
		}
	}

	// A clock that went backwards is treated as the same day.
	diffDays := l.cal.DaysBetween(last, now)
	if diffDays < 0 {
		diffDays = 0
	}
	t.DaysElapsed = diffDays

	if diffDays >= 1 {
		t.DayRolled = true
		closed := rec.DailyTime

		if closed > 0 {
			t.ArchivedDay = l.cal.DayKey(rec.LastStudyDate)
			t.ArchivedMs = closed
			rec.archive(t.ArchivedDay, closed)
		}

		if hadActivity {
			if diffDays == 1 && closed >= l.cfg.DailyTargetMs() {
				rec.CurrentStreak++
			} else {
				// Skipped days count as failed days.
				rec.CurrentStreak = 0
			}
		}

		rec.DailyTime = 0
	}

	rec.DailyTime += durationMs
	rec.TotalTime += durationMs
	rec.LastStudyDate = now

	if l.cfg.RawSessionRetentionDays > 0 {
		rec.RawSessions = append(rec.RawSessions, RawSession{
			StartTime:  now.Add(-time.Duration(durationMs) * time.Millisecond),
			DurationMs: durationMs,
		})
		rec.RawSessions = l.PruneSessions(rec.RawSessions, now)
	}

	t.StreakAfter = rec.CurrentStreak
	return t, nil
}

// PruneSessions drops sessions that ended before the retention window.
func (l *Ledger) PruneSessions(sessions []RawSession, now time.Time) []RawSession {
	if l.cfg.RawSessionRetentionDays <= 0 {
		return sessions[:0]
	}
	cutoff := l.cal.StartOfDay(l.cal.AddDays(now, -(l.cfg.RawSessionRetentionDays - 1)))

	kept := sessions[:0]
	for _, s := range sessions {
		if s.DurationMs <= 0 || !s.End().After(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
