// Package stats derives descriptive metrics from a study record's history:
// daily series, variability, consistency, observed streak runs and the
// busiest hours of the day. Every function is pure and never returns NaN.
package stats

import (
	"time"

	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// DayPoint is one position of a daily series.
type DayPoint struct {
	Date  string  `json:"date"`  // YYYY-MM-DD
	Label string  `json:"label"` // DD/MM
	Hours float64 `json:"hours"`
}

// OpenDayPolicy decides which calendar day the un-archived DailyTime is
// charged to on read paths.
type OpenDayPolicy string

const (
	// OpenDayToday charges DailyTime to the current day. The ledger only
	// archives it when the next session arrives, so until then it is today's.
	OpenDayToday OpenDayPolicy = "today"

	// OpenDayLastStudy charges DailyTime to the day of LastStudyDate. A user
	// who has not come back shows no time today.
	OpenDayLastStudy OpenDayPolicy = "last_study_day"
)

// IsValid reports whether p is a known policy.
func (p OpenDayPolicy) IsValid() bool {
	return p == OpenDayToday || p == OpenDayLastStudy
}

// OpenDayKey returns the day DailyTime is charged to under policy, or "" when
// the record has no open day.
func OpenDayKey(rec *study.StudyRecord, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) string {
	if rec == nil {
		return ""
	}
	if policy == OpenDayLastStudy {
		if !rec.HasPriorActivity() {
			return ""
		}
		return cal.DayKey(rec.LastStudyDate)
	}
	return cal.DayKey(now)
}

// TodayMs returns the time counted for the current calendar day.
func TodayMs(rec *study.StudyRecord, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) int64 {
	if rec == nil || rec.DailyTime <= 0 {
		return 0
	}
	if OpenDayKey(rec, now, cal, policy) != cal.DayKey(now) {
		return 0
	}
	return rec.DailyTime
}

// dayValues merges history with the open day. The open day's DailyTime
// replaces any history entry under the same key.
func dayValues(rec *study.StudyRecord, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) map[string]int64 {
	if rec == nil {
		return map[string]int64{}
	}
	m := rec.HistoryByDate()
	if key := OpenDayKey(rec, now, cal, policy); key != "" {
		m[key] = rec.DailyTime
	}
	return m
}

// DailyPoints returns the last days calendar days ending today, oldest first.
// Missing days are zero.
func DailyPoints(rec *study.StudyRecord, days int, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) []DayPoint {
	if days <= 0 {
		return []DayPoint{}
	}
	values := dayValues(rec, now, cal, policy)

	points := make([]DayPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := cal.AddDays(now, -i)
		key := cal.DayKey(d)
		points = append(points, DayPoint{
			Date:  key,
			Label: cal.ShortLabel(d),
			Hours: timeutil.MsToHours(values[key]),
		})
	}
	return points
}

// DailySeries returns the hours-per-day series for the window ending today.
func DailySeries(rec *study.StudyRecord, days int, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) []float64 {
	points := DailyPoints(rec, days, now, cal, policy)
	series := make([]float64, len(points))
	for i, p := range points {
		series[i] = p.Hours
	}
	return series
}

// LoggedDayHours returns every non-zero logged day in hours: the closed
// history plus the open day, in chronological order.
func LoggedDayHours(rec *study.StudyRecord, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) []float64 {
	if rec == nil {
		return []float64{}
	}
	open := OpenDayKey(rec, now, cal, policy)

	out := make([]float64, 0, len(rec.History)+1)
	for _, e := range study.NormalizeHistory(rec.History) {
		if e.Date == open {
			continue
		}
		out = append(out, timeutil.MsToHours(e.Ms))
	}
	if rec.DailyTime > 0 {
		out = append(out, timeutil.MsToHours(rec.DailyTime))
	}
	return out
}

// NonZeroSamples counts the logged days that carry a value, including the open day.
func NonZeroSamples(rec *study.StudyRecord, now time.Time, cal timeutil.Calendar, policy OpenDayPolicy) int {
	n := 0
	for _, h := range LoggedDayHours(rec, now, cal, policy) {
		if h > 0 {
			n++
		}
	}
	return n
}
