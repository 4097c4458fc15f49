package stats

import (
	"math"
	"time"

	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// Config contains the statistics engine tunables.
type Config struct {
	TargetHours          float64 // daily target, shared with the ledger's streak target
	WindowDays           int     // long window for consistency and stddev (30)
	RecentDays           int     // short window for averages and projection (7)
	IdealSampleSize      int     // CV normalization sample size (14)
	BusyThresholdMinutes float64 // busiest-interval threshold (30)
	ProjectionDays       int     // how far the projection looks ahead (7)

	// OpenDay places the un-archived DailyTime (default OpenDayToday).
	OpenDay OpenDayPolicy
}

// DefaultConfig returns the default statistics configuration.
func DefaultConfig() Config {
	return Config{
		TargetHours:          6,
		WindowDays:           30,
		RecentDays:           7,
		IdealSampleSize:      DefaultIdealSampleSize,
		BusyThresholdMinutes: DefaultBusyThresholdMinutes,
		ProjectionDays:       7,
		OpenDay:              OpenDayToday,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TargetHours <= 0 {
		c.TargetHours = def.TargetHours
	}
	if c.WindowDays <= 0 {
		c.WindowDays = def.WindowDays
	}
	if c.RecentDays <= 0 {
		c.RecentDays = def.RecentDays
	}
	if c.IdealSampleSize <= 0 {
		c.IdealSampleSize = def.IdealSampleSize
	}
	if c.BusyThresholdMinutes <= 0 {
		c.BusyThresholdMinutes = def.BusyThresholdMinutes
	}
	if c.ProjectionDays <= 0 {
		c.ProjectionDays = def.ProjectionDays
	}
	if !c.OpenDay.IsValid() {
		c.OpenDay = def.OpenDay
	}
	return c
}

// Engine computes per-user statistics.
type Engine struct {
	cfg Config
	cal timeutil.Calendar
}

// NewEngine creates a statistics engine.
func NewEngine(cfg Config, cal timeutil.Calendar) *Engine {
	return &Engine{cfg: cfg.withDefaults(), cal: cal}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Calendar returns the engine's calendar.
func (e *Engine) Calendar() timeutil.Calendar {
	return e.cal
}

// Series returns the daily series for days ending at now.
func (e *Engine) Series(rec *study.StudyRecord, days int, now time.Time) []float64 {
	return DailySeries(rec, days, now, e.cal, e.cfg.OpenDay)
}

// Points returns the labelled daily series for days ending at now.
func (e *Engine) Points(rec *study.StudyRecord, days int, now time.Time) []DayPoint {
	return DailyPoints(rec, days, now, e.cal, e.cfg.OpenDay)
}

// TodayMs returns the time counted for the day of now.
func (e *Engine) TodayMs(rec *study.StudyRecord, now time.Time) int64 {
	return TodayMs(rec, now, e.cal, e.cfg.OpenDay)
}

// LoggedDays returns every non-zero logged day in hours.
func (e *Engine) LoggedDays(rec *study.StudyRecord, now time.Time) []float64 {
	return LoggedDayHours(rec, now, e.cal, e.cfg.OpenDay)
}

// Window computes the metrics over the configured long window.
func (e *Engine) Window(rec *study.StudyRecord, now time.Time) WindowMetrics {
	return ComputeWindow(e.Series(rec, e.cfg.WindowDays, now), e.cfg.TargetHours)
}

// Intervals runs busiest-interval analysis over the record's raw sessions.
func (e *Engine) Intervals(rec *study.StudyRecord, now time.Time) IntervalReport {
	var sessions []study.RawSession
	if rec != nil {
		sessions = rec.RawSessions
	}
	return BusiestIntervals(sessions, e.cfg.WindowDays, e.cfg.BusyThresholdMinutes, now, e.cal)
}

// NormalizedCV returns the CV over every logged day, damped by sample count.
func (e *Engine) NormalizedCV(rec *study.StudyRecord, now time.Time) (raw, normalized float64, samples int) {
	logged := e.LoggedDays(rec, now)
	raw = CoefficientOfVariation(logged)
	samples = NonZeroSamples(rec, now, e.cal, e.cfg.OpenDay)
	return raw, NormalizedCV(raw, samples, e.cfg.IdealSampleSize), samples
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// Summary is the per-user profile shown to callers.
type Summary struct {
	UserID        string    `json:"user_id"`
	TotalMs       int64     `json:"total_ms"`
	TotalHours    float64   `json:"total_hours"`
	TodayMs       int64     `json:"today_ms"`
	TodayHours    float64   `json:"today_hours"`
	CurrentStreak int       `json:"current_streak"`
	LastStudyDate time.Time `json:"last_study_date,omitempty"`

	TargetHours     float64 `json:"target_hours"`
	ProgressPercent int     `json:"progress_percent"`

	Window WindowMetrics `json:"window"`

	RecentAverage float64 `json:"recent_average"`

	// ImprovementPercent compares today with the average of the previous
	// RecentDays-1 days. Nil when that average is zero.
	ImprovementPercent *float64 `json:"improvement_percent,omitempty"`

	ProjectedHours      float64 `json:"projected_hours"`
	ProjectedTotalHours float64 `json:"projected_total_hours"`

	Consistency     ConsistencyLevel `json:"consistency"`
	NormalizedCV    float64          `json:"normalized_cv"`
	LoggedDays      int              `json:"logged_days"`
	HasAnyStudyTime bool             `json:"has_any_study_time"`
}

// Summarize builds the profile summary of a record at now.
func (e *Engine) Summarize(rec *study.StudyRecord, now time.Time) Summary {
	if rec == nil {
		rec = study.NewStudyRecord("")
	}

	today := e.TodayMs(rec, now)
	s := Summary{
		UserID:          rec.UserID,
		TotalMs:         rec.TotalTime,
		TotalHours:      timeutil.MsToHours(rec.TotalTime),
		TodayMs:         today,
		TodayHours:      timeutil.MsToHours(today),
		CurrentStreak:   rec.CurrentStreak,
		LastStudyDate:   rec.LastStudyDate,
		TargetHours:     e.cfg.TargetHours,
		ProgressPercent: ProgressPercent(today, e.cfg.TargetHours),
		HasAnyStudyTime: rec.TotalTime > 0,
	}

	long := e.Series(rec, e.cfg.WindowDays, now)
	s.Window = ComputeWindow(long, e.cfg.TargetHours)

	recent := e.Series(rec, e.cfg.RecentDays, now)
	s.RecentAverage = Mean(recent)

	if len(recent) > 1 {
		previous := Mean(recent[:len(recent)-1])
		if previous > 0 {
			pct := (s.TodayHours - previous) / previous * 100
			s.ImprovementPercent = &pct
		}
	}

	if s.RecentAverage > 0 {
		s.ProjectedHours = s.RecentAverage * float64(e.cfg.ProjectionDays)
		s.ProjectedTotalHours = s.TotalHours + s.ProjectedHours
	}

	s.Consistency = ClassifyConsistency(e.LoggedDays(rec, now))
	_, s.NormalizedCV, s.LoggedDays = e.NormalizedCV(rec, now)

	return s
}

// ProgressPercent is today's progress towards the target, capped at 100.
func ProgressPercent(todayMs int64, targetHours float64) int {
	target := timeutil.HoursToMs(targetHours)
	if target <= 0 || todayMs <= 0 {
		return 0
	}
	pct := math.Round(float64(todayMs) / float64(target) * 100)
	return int(math.Min(100, pct))
}
