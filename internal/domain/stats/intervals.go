package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// DefaultBusyThresholdMinutes is the average minutes per day an hour needs to count as busy.
const DefaultBusyThresholdMinutes = 30.0

// BusyBlock is a half-open hour range [StartHour, EndHour). EndHour may be 24.
type BusyBlock struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Hours returns the block length.
func (b BusyBlock) Hours() int {
	return b.EndHour - b.StartHour
}

// String renders "08:00-11:00".
func (b BusyBlock) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", b.StartHour, b.EndHour%24)
}

// IntervalReport is the result of busiest-interval analysis.
type IntervalReport struct {
	// InsufficientData is set when there were no raw sessions to analyse.
	InsufficientData bool `json:"insufficient_data"`

	WindowDays       int         `json:"window_days"`
	ThresholdMinutes float64     `json:"threshold_minutes"`
	AverageMinutes   [24]float64 `json:"average_minutes"`
	Blocks           []BusyBlock `json:"blocks"`
}

// String summarizes the report in one line.
func (r IntervalReport) String() string {
	if r.InsufficientData {
		return "insufficient data: no sessions recorded"
	}
	if len(r.Blocks) == 0 {
		return fmt.Sprintf("no hour averaged %.0f minutes per day over the last %d days", r.ThresholdMinutes, r.WindowDays)
	}
	parts := make([]string, len(r.Blocks))
	for i, b := range r.Blocks {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}

// BusiestIntervals accumulates, per local hour of day, the minutes each
// session overlaps that hour within the window ending today, averages by
// windowDays and reports maximal runs of hours at or above the threshold.
func BusiestIntervals(sessions []study.RawSession, windowDays int, thresholdMinutes float64, now time.Time, cal timeutil.Calendar) IntervalReport {
	if windowDays <= 0 {
		windowDays = 30
	}
	if thresholdMinutes <= 0 {
		thresholdMinutes = DefaultBusyThresholdMinutes
	}

	report := IntervalReport{
		WindowDays:       windowDays,
		ThresholdMinutes: thresholdMinutes,
		Blocks:           []BusyBlock{},
	}
	if len(sessions) == 0 {
		report.InsufficientData = true
		return report
	}

	windowStart := cal.StartOfDay(cal.AddDays(now, -(windowDays - 1)))
	loc := cal.Location()

	var totals [24]float64
	for _, s := range sessions {
		start, end := s.StartTime, s.End()
		if start.Before(windowStart) {
			start = windowStart
		}
		if end.After(now) {
			end = now
		}
		if !end.After(start) {
			continue
		}

		cur := start.In(loc)
		for cur.Before(end) {
			next := time.Date(cur.Year(), cur.Month(), cur.Day(), cur.Hour()+1, 0, 0, 0, loc)
			// Clocks that fall back repeat an hour; always move forward.
			if !next.After(cur) {
				next = cur.Truncate(time.Hour).Add(time.Hour)
			}
			if next.After(end) {
				next = end
			}
			totals[cur.Hour()] += next.Sub(cur).Minutes()
			cur = next.In(loc)
		}
	}

	for h := range totals {
		report.AverageMinutes[h] = totals[h] / float64(windowDays)
	}

	inBlock := false
	startHour := 0
	for h := 0; h < 24; h++ {
		busy := report.AverageMinutes[h] >= thresholdMinutes
		switch {
		case busy && !inBlock:
			inBlock = true
			startHour = h
		case !busy && inBlock:
			inBlock = false
			report.Blocks = append(report.Blocks, BusyBlock{StartHour: startHour, EndHour: h})
		}
	}
	if inBlock {
		report.Blocks = append(report.Blocks, BusyBlock{StartHour: startHour, EndHour: 24})
	}

	return report
}
