package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

const hour = timeutil.MsPerHour

var utc = timeutil.NewCalendar(time.UTC)

func day(d, h int) time.Time {
	return time.Date(2024, 6, d, h, 0, 0, 0, time.UTC)
}

func TestMeanAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, PopulationStdDev(nil))
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(values), 1e-9)
	assert.InDelta(t, 2.0, PopulationStdDev(values), 1e-9)
	assert.InDelta(t, 0.4, CoefficientOfVariation(values), 1e-9)
}

func TestIdenticalDaysHaveNoVariation(t *testing.T) {
	values := []float64{3, 3, 3, 3}
	assert.Equal(t, 0.0, PopulationStdDev(values))
	assert.Equal(t, 0.0, CoefficientOfVariation(values))
}

func TestZeroMeanCV(t *testing.T) {
	cv := CoefficientOfVariation([]float64{0, 0, 0})
	assert.Equal(t, 0.0, cv)
	assert.False(t, math.IsNaN(cv))
}

func TestNormalizedCV(t *testing.T) {
	assert.Equal(t, 0.0, NormalizedCV(0.8, 0, 14))
	assert.Equal(t, 0.0, NormalizedCV(math.NaN(), 5, 14))
	assert.InDelta(t, 0.4, NormalizedCV(0.8, 7, 14), 1e-9)
	assert.InDelta(t, 0.8, NormalizedCV(0.8, 30, 14), 1e-9)
	assert.InDelta(t, 0.4, NormalizedCV(0.8, 7, 0), 1e-9, "zero ideal falls back to default")
}

func TestConsistencyPercent(t *testing.T) {
	assert.Equal(t, 0.0, ConsistencyPercent(nil, 6))
	assert.InDelta(t, 50.0, ConsistencyPercent([]float64{6, 7, 5.99, 0}, 6), 1e-9)
}

func TestStreakRuns(t *testing.T) {
	series := []float64{0, 1, 2, 0, 0, 3, 0, 1, 1, 1}
	assert.Equal(t, []int{2, 1, 3}, StreakRuns(series))
	assert.InDelta(t, 2.0, MeanStreakLength(series), 1e-9)
	assert.Equal(t, 3, LongestStreak(series))

	assert.Equal(t, 0.0, MeanStreakLength([]float64{0, 0}))
	assert.Equal(t, 0.0, MeanStreakLength(nil))
}

func TestClassifyConsistency(t *testing.T) {
	assert.Equal(t, ConsistencyInsufficient, ClassifyConsistency([]float64{5}))
	assert.Equal(t, ConsistencyMachine, ClassifyConsistency([]float64{5, 5, 5}))
	assert.Equal(t, ConsistencyConsistent, ClassifyConsistency([]float64{4, 6}))
	assert.Equal(t, ConsistencyVariable, ClassifyConsistency([]float64{2, 6}))
	assert.Equal(t, ConsistencyIrregular, ClassifyConsistency([]float64{1, 9}))
	assert.NotEmpty(t, ConsistencyIrregular.Description())
}

func TestDailySeries_TodayWins(t *testing.T) {
	rec := &study.StudyRecord{
		DailyTime:     2 * hour,
		LastStudyDate: day(10, 9),
		History: []study.HistoryEntry{
			{Date: "2024-06-07", Ms: 3 * hour},
			{Date: "2024-06-09", Ms: 6 * hour},
			{Date: "2024-06-10", Ms: 99 * hour}, // stray entry for the open day
			{Date: "2024-05-01", Ms: 5 * hour},  // outside the window
		},
	}

	series := DailySeries(rec, 5, day(10, 20), utc, OpenDayToday)
	assert.Equal(t, []float64{0, 3, 0, 6, 2}, series)

	points := DailyPoints(rec, 2, day(10, 20), utc, OpenDayToday)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-06-09", points[0].Date)
	assert.Equal(t, "09/06", points[0].Label)
}

func TestDailySeries_StaleOpenDay(t *testing.T) {
	// The user last studied two days ago and has not come back since.
	rec := &study.StudyRecord{DailyTime: 4 * hour, LastStudyDate: day(8, 9)}
	now := day(10, 12)

	t.Run("today", func(t *testing.T) {
		assert.Equal(t, []float64{0, 0, 4}, DailySeries(rec, 3, now, utc, OpenDayToday))
		assert.Equal(t, 4*hour, TodayMs(rec, now, utc, OpenDayToday))
	})
	t.Run("last study day", func(t *testing.T) {
		assert.Equal(t, []float64{4, 0, 0}, DailySeries(rec, 3, now, utc, OpenDayLastStudy))
		assert.Equal(t, int64(0), TodayMs(rec, now, utc, OpenDayLastStudy))
	})
}

func TestSummarize_OpenDayPolicy(t *testing.T) {
	now := day(10, 12)
	rec := &study.StudyRecord{
		UserID:        "u1",
		TotalTime:     7 * hour,
		DailyTime:     7 * hour,
		LastStudyDate: now.AddDate(0, 0, -40),
	}

	tests := []struct {
		policy      OpenDayPolicy
		todayHours  float64
		progress    int
		consistency float64
	}{
		{OpenDayToday, 7, 100, 100.0 / 30},
		{OpenDayLastStudy, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OpenDay = tt.policy
			s := NewEngine(cfg, utc).Summarize(rec, now)

			assert.InDelta(t, tt.todayHours, s.TodayHours, 1e-9)
			assert.Equal(t, tt.progress, s.ProgressPercent)
			assert.InDelta(t, tt.consistency, s.Window.ConsistencyPercent, 1e-9)
		})
	}
}

func TestEngine_DefaultsToTodayPolicy(t *testing.T) {
	assert.Equal(t, OpenDayToday, NewEngine(Config{}, utc).Config().OpenDay)
	assert.Equal(t, OpenDayToday, NewEngine(Config{OpenDay: "bogus"}, utc).Config().OpenDay)
	assert.False(t, OpenDayPolicy("bogus").IsValid())
}

func TestNonZeroSamples(t *testing.T) {
	rec := &study.StudyRecord{
		DailyTime:     hour,
		LastStudyDate: day(10, 9),
		History: []study.HistoryEntry{
			{Date: "2024-06-08", Ms: hour},
			{Date: "2024-06-09", Ms: 2 * hour},
		},
	}
	now := day(10, 12)
	assert.Equal(t, 3, NonZeroSamples(rec, now, utc, OpenDayToday))
	assert.Equal(t, []float64{1, 2, 1}, LoggedDayHours(rec, now, utc, OpenDayToday))

	assert.Equal(t, 0, NonZeroSamples(study.NewStudyRecord("x"), now, utc, OpenDayToday))
}

func TestBusiestIntervals_NoSessions(t *testing.T) {
	report := BusiestIntervals(nil, 30, 30, day(10, 12), utc)
	assert.True(t, report.InsufficientData)
	assert.Empty(t, report.Blocks)
	assert.Contains(t, report.String(), "insufficient")
}

func TestBusiestIntervals_Blocks(t *testing.T) {
	// Two days, 08:30-11:00 on both: hour 8 gets 30 min/day, 9 and 10 get 60.
	sessions := []study.RawSession{
		{StartTime: day(9, 8).Add(30 * time.Minute), DurationMs: 150 * 60_000},
		{StartTime: day(10, 8).Add(30 * time.Minute), DurationMs: 150 * 60_000},
		// One short evening session that stays below the threshold.
		{StartTime: day(10, 20), DurationMs: 20 * 60_000},
	}

	report := BusiestIntervals(sessions, 2, 30, day(10, 23), utc)
	require.False(t, report.InsufficientData)
	assert.InDelta(t, 30.0, report.AverageMinutes[8], 1e-9)
	assert.InDelta(t, 60.0, report.AverageMinutes[9], 1e-9)
	assert.InDelta(t, 10.0, report.AverageMinutes[20], 1e-9)
	assert.Equal(t, []BusyBlock{{StartHour: 8, EndHour: 11}}, report.Blocks)
	assert.Equal(t, "08:00-11:00", report.String())
}

func TestBusiestIntervals_WrapsToMidnight(t *testing.T) {
	sessions := []study.RawSession{
		{StartTime: day(10, 22), DurationMs: 2 * hour},
	}

	report := BusiestIntervals(sessions, 1, 30, day(11, 6), utc)
	// The window is only 2024-06-11, so the session is clipped away.
	assert.Empty(t, report.Blocks)

	report = BusiestIntervals(sessions, 2, 30, day(11, 6), utc)
	assert.Equal(t, []BusyBlock{{StartHour: 22, EndHour: 24}}, report.Blocks)
	assert.Equal(t, "22:00-00:00", report.Blocks[0].String())
}

func TestSummarize(t *testing.T) {
	engine := NewEngine(DefaultConfig(), utc)
	rec := &study.StudyRecord{
		UserID:        "u1",
		TotalTime:     40 * hour,
		DailyTime:     3 * hour,
		CurrentStreak: 2,
		LastStudyDate: day(10, 9),
		History: []study.HistoryEntry{
			{Date: "2024-06-08", Ms: 6 * hour},
			{Date: "2024-06-09", Ms: 6 * hour},
		},
	}

	s := engine.Summarize(rec, day(10, 12))

	assert.Equal(t, 50, s.ProgressPercent)
	assert.InDelta(t, 3.0, s.TodayHours, 1e-9)
	assert.InDelta(t, 15.0/7, s.RecentAverage, 1e-9)
	require.NotNil(t, s.ImprovementPercent)
	// Previous six days average 2h; today is 3h.
	assert.InDelta(t, 50.0, *s.ImprovementPercent, 1e-9)
	assert.InDelta(t, 15.0, s.ProjectedHours, 1e-9)
	assert.InDelta(t, 55.0, s.ProjectedTotalHours, 1e-9)
	assert.InDelta(t, 200.0/30, s.Window.ConsistencyPercent, 1e-9)
	assert.Equal(t, 3, s.LoggedDays)
	assert.Equal(t, ConsistencyConsistent, s.Consistency)
}

func TestSummarize_EmptyRecord(t *testing.T) {
	engine := NewEngine(Config{}, utc)
	s := engine.Summarize(study.NewStudyRecord("u2"), day(10, 12))

	assert.Equal(t, 0, s.ProgressPercent)
	assert.Nil(t, s.ImprovementPercent)
	assert.Equal(t, 0.0, s.ProjectedHours)
	assert.Equal(t, ConsistencyInsufficient, s.Consistency)
	assert.False(t, s.HasAnyStudyTime)
	assert.Equal(t, 30, s.Window.Days)
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 100, ProgressPercent(9*hour, 6))
	assert.Equal(t, 17, ProgressPercent(hour, 6))
	assert.Equal(t, 0, ProgressPercent(0, 6))
}
