package stats

import "math"

// DefaultIdealSampleSize is the number of logged days after which CV is trusted fully.
const DefaultIdealSampleSize = 14

// Mean returns the arithmetic mean, 0 for an empty series.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStdDev divides by N, not N-1.
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// CoefficientOfVariation is stddev/mean, 0 when the mean is 0.
func CoefficientOfVariation(values []float64) float64 {
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	return PopulationStdDev(values) / mean
}

// NormalizedCV damps the CV for users with few logged days:
// cv * min(1, samples/ideal). No samples means no signal.
func NormalizedCV(cv float64, samples, ideal int) float64 {
	if samples <= 0 || math.IsNaN(cv) || math.IsInf(cv, 0) {
		return 0
	}
	if ideal <= 0 {
		ideal = DefaultIdealSampleSize
	}
	return cv * math.Min(1, float64(samples)/float64(ideal))
}

// ConsistencyPercent is the share of days at or above targetHours, 0..100.
func ConsistencyPercent(series []float64, targetHours float64) float64 {
	if len(series) == 0 {
		return 0
	}
	hit := 0
	for _, h := range series {
		if h >= targetHours {
			hit++
		}
	}
	return float64(hit) / float64(len(series)) * 100
}

// StreakRuns returns the lengths of maximal runs of consecutive non-zero days.
func StreakRuns(series []float64) []int {
	runs := make([]int, 0)
	current := 0
	for _, h := range series {
		if h > 0 {
			current++
			continue
		}
		if current > 0 {
			runs = append(runs, current)
			current = 0
		}
	}
	if current > 0 {
		runs = append(runs, current)
	}
	return runs
}

// MeanStreakLength is the average observed run length, 0 with no runs.
// It is read-only and independent of the ledger's current streak.
func MeanStreakLength(series []float64) float64 {
	runs := StreakRuns(series)
	if len(runs) == 0 {
		return 0
	}
	total := 0
	for _, r := range runs {
		total += r
	}
	return float64(total) / float64(len(runs))
}

// LongestStreak returns the longest observed run.
func LongestStreak(series []float64) int {
	longest := 0
	for _, r := range StreakRuns(series) {
		if r > longest {
			longest = r
		}
	}
	return longest
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSISTENCY LABELS
// ══════════════════════════════════════════════════════════════════════════════

// ConsistencyLevel classifies a CV expressed in percent.
type ConsistencyLevel string

const (
	ConsistencyInsufficient ConsistencyLevel = "insufficient_data"
	ConsistencyMachine      ConsistencyLevel = "machine"
	ConsistencyConsistent   ConsistencyLevel = "consistent"
	ConsistencyVariable     ConsistencyLevel = "variable"
	ConsistencyIrregular    ConsistencyLevel = "irregular"
)

// Description returns a short human-readable label.
func (l ConsistencyLevel) Description() string {
	switch l {
	case ConsistencyMachine:
		return "Study machine (very high regularity)"
	case ConsistencyConsistent:
		return "Consistent"
	case ConsistencyVariable:
		return "Variable"
	case ConsistencyIrregular:
		return "Irregular (bursts of focus)"
	default:
		return "Not enough data"
	}
}

// ClassifyConsistency labels a series of logged day values by its CV.
// Fewer than two values cannot be classified.
func ClassifyConsistency(values []float64) ConsistencyLevel {
	if len(values) < 2 || Mean(values) == 0 {
		return ConsistencyInsufficient
	}
	cv := CoefficientOfVariation(values) * 100
	switch {
	case cv < 15:
		return ConsistencyMachine
	case cv < 40:
		return ConsistencyConsistent
	case cv < 70:
		return ConsistencyVariable
	default:
		return ConsistencyIrregular
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WINDOW METRICS
// ══════════════════════════════════════════════════════════════════════════════

// WindowMetrics bundles the metrics of one daily series.
type WindowMetrics struct {
	Days               int     `json:"days"`
	TotalHours         float64 `json:"total_hours"`
	Mean               float64 `json:"mean"`
	StdDev             float64 `json:"std_dev"`
	CV                 float64 `json:"cv"`
	ConsistencyPercent float64 `json:"consistency_percent"`
	MeanStreakLength   float64 `json:"mean_streak_length"`
	LongestStreak      int     `json:"longest_streak"`
	ActiveDays         int     `json:"active_days"`
}

// ComputeWindow computes every metric of a series against targetHours.
func ComputeWindow(series []float64, targetHours float64) WindowMetrics {
	m := WindowMetrics{
		Days:               len(series),
		Mean:               Mean(series),
		StdDev:             PopulationStdDev(series),
		CV:                 CoefficientOfVariation(series),
		ConsistencyPercent: ConsistencyPercent(series, targetHours),
		MeanStreakLength:   MeanStreakLength(series),
		LongestStreak:      LongestStreak(series),
	}
	for _, h := range series {
		m.TotalHours += h
		if h > 0 {
			m.ActiveDays++
		}
	}
	return m
}
