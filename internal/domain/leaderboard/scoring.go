package leaderboard

import (
	"fmt"
	"math"
	"time"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Weights - веса линейной формулы: score = α·h + β·s + γ·c − δ·sd.
type Weights struct {
	Alpha float64 `json:"alpha"` // часы
	Beta  float64 `json:"beta"`  // streak
	Gamma float64 `json:"gamma"` // consistency
	Delta float64 `json:"delta"` // штраф за разброс
}

// DefaultWeights возвращает веса по умолчанию.
func DefaultWeights() Weights {
	return Weights{Alpha: 0.5, Beta: 0.3, Gamma: 0.2, Delta: 0.1}
}

// Validate проверяет, что все веса неотрицательны и конечны.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Alpha, w.Beta, w.Gamma, w.Delta} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNegativeWeight
		}
	}
	return nil
}

// Config содержит настройки движка рейтинга.
type Config struct {
	Mode    Mode
	Weights Weights

	// TopK - размер выдачи.
	TopK int

	// StreakCap - ограничение streak (7 дней).
	StreakCap int

	// Gamma - сглаживающая константа мультипликативного режима.
	Gamma float64

	// WindowDays - окно для consistency и stddev.
	WindowDays int
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeLinear,
		Weights:    DefaultWeights(),
		TopK:       10,
		StreakCap:  7,
		Gamma:      0.5,
		WindowDays: 30,
	}
}

// Validate проверяет настройки.
func (c Config) Validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", c.TopK)
	}
	if c.StreakCap <= 0 {
		return fmt.Errorf("streak cap must be positive, got %d", c.StreakCap)
	}
	if c.Gamma <= 0 {
		return fmt.Errorf("gamma must be positive, got %v", c.Gamma)
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("window days must be positive, got %d", c.WindowDays)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// Scorer строит рейтинг по всей когорте.
type Scorer struct {
	cfg    Config
	engine *stats.Engine
}

// NewScorer создаёт Scorer. engine задаёт цель в часах, календарь и idealSampleSize.
func NewScorer(cfg Config, engine *stats.Engine) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, shared.WrapError("leaderboard", "NewScorer", shared.ErrInvalidInput, "invalid ranking config", err)
	}
	return &Scorer{cfg: cfg, engine: engine}, nil
}

// Config возвращает настройки.
func (s *Scorer) Config() Config {
	return s.cfg
}

// CollectSignals считает сигналы каждого пользователя.
// Пользователи с TotalHours <= 0 исключаются: сигнала нет.
// Записи без UserID пропускаются, из повторов остаётся первая.
func (s *Scorer) CollectSignals(records []*study.StudyRecord, now time.Time) []Signals {
	target := s.engine.Config().TargetHours
	out := make([]Signals, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if rec == nil || rec.UserID == "" {
			continue
		}
		if _, dup := seen[rec.UserID]; dup {
			continue
		}
		seen[rec.UserID] = struct{}{}
		hours := timeutil.MsToHours(rec.TotalTime)
		if hours <= 0 {
			continue
		}

		series := s.engine.Series(rec, s.cfg.WindowDays, now)
		cv, normCV, samples := s.engine.NormalizedCV(rec, now)

		out = append(out, Signals{
			UserID:       rec.UserID,
			TotalHours:   hours,
			Streak:       rec.CurrentStreak,
			StreakCapped: min(rec.CurrentStreak, s.cfg.StreakCap),
			Consistency:  stats.ConsistencyPercent(series, target),
			StdDev:       stats.PopulationStdDev(series),
			CV:           cv,
			NormalizedCV: normCV,
			Samples:      samples,
		})
	}
	return out
}

// Score нормализует сигналы и возвращает отсортированный рейтинг.
// Нормализация идёт по той же когорте, что попадает в рейтинг.
func (s *Scorer) Score(signals []Signals) *Ranking {
	ranking := NewRanking()
	signals = distinctSignals(signals)
	if len(signals) == 0 {
		return ranking
	}

	hours := make([]float64, len(signals))
	streaks := make([]float64, len(signals))
	consistency := make([]float64, len(signals))
	stdDevs := make([]float64, len(signals))
	for i, sig := range signals {
		hours[i] = sig.TotalHours
		streaks[i] = float64(sig.StreakCapped)
		consistency[i] = sig.Consistency
		stdDevs[i] = sig.StdDev
	}

	nHours := MinMaxNormalize(hours)
	nStreaks := MinMaxNormalize(streaks)
	nConsistency := MinMaxNormalize(consistency)
	nStdDevs := MinMaxNormalize(stdDevs)

	for i, sig := range signals {
		comp := Components{
			Hours:       nHours[i],
			Streak:      nStreaks[i],
			Consistency: nConsistency[i],
			StdDev:      nStdDevs[i],
		}

		var score float64
		switch s.cfg.Mode {
		case ModeMultiplicative:
			score = MultiplicativeScore(sig, s.cfg.StreakCap, s.cfg.Gamma)
		default:
			score = LinearScore(comp, s.cfg.Weights)
		}

		if err := ranking.Add(&Entry{
			UserID:     sig.UserID,
			Score:      score,
			Signals:    sig,
			Normalized: comp,
		}); err != nil {
			// distinctSignals уже убрал всё, что Add может отклонить.
			continue
		}
	}

	ranking.SortByScore()
	return ranking
}

// distinctSignals убирает сигналы без UserID и повторы, сохраняя первый.
func distinctSignals(signals []Signals) []Signals {
	seen := make(map[string]struct{}, len(signals))
	out := signals[:0:0]
	for _, sig := range signals {
		if sig.UserID == "" {
			continue
		}
		if _, dup := seen[sig.UserID]; dup {
			continue
		}
		seen[sig.UserID] = struct{}{}
		out = append(out, sig)
	}
	return out
}

// Build считает сигналы и рейтинг за один проход.
func (s *Scorer) Build(records []*study.StudyRecord, now time.Time) *Ranking {
	return s.Score(s.CollectSignals(records, now))
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMULAS
// ══════════════════════════════════════════════════════════════════════════════

// MinMaxNormalize масштабирует значения в [0,1].
// Если все значения равны, каждому достаётся 0.5, без деления на ноль.
func MinMaxNormalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	span := hi - lo
	for i, v := range values {
		if span == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (v - lo) / span
	}
	return out
}

// LinearScore = α·h + β·s + γ·c − δ·sd над нормализованными компонентами.
func LinearScore(c Components, w Weights) float64 {
	return w.Alpha*c.Hours + w.Beta*c.Streak + w.Gamma*c.Consistency - w.Delta*c.StdDev
}

// MultiplicativeScore = hours * (1 + streak/cap) / (CVnorm + gamma).
func MultiplicativeScore(sig Signals, streakCap int, gamma float64) float64 {
	if streakCap <= 0 {
		streakCap = 7
	}
	if gamma <= 0 {
		gamma = 0.5
	}
	streakFactor := 1 + float64(min(sig.StreakCapped, streakCap))/float64(streakCap)
	denominator := sig.NormalizedCV + gamma
	if denominator <= 0 {
		denominator = gamma
	}
	return sig.TotalHours * streakFactor / denominator
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPLAIN
// ══════════════════════════════════════════════════════════════════════════════

// Explain строит рейтинг и возвращает подробный расчёт для userID.
// Если пользователь не вошёл в когорту, Eligible = false.
func (s *Scorer) Explain(records []*study.StudyRecord, userID string, now time.Time) *Breakdown {
	ranking := s.Build(records, now)
	out := &Breakdown{
		UserID:  userID,
		Of:      ranking.Count(),
		Mode:    s.cfg.Mode,
		Weights: s.cfg.Weights,
	}

	for _, rec := range records {
		if rec == nil || rec.UserID != userID {
			continue
		}
		logged := s.engine.LoggedDays(rec, now)
		out.LoggedDayHours = logged
		out.Mean = stats.Mean(logged)
		out.StdDev = stats.PopulationStdDev(logged)
		break
	}
	if out.LoggedDayHours == nil {
		out.LoggedDayHours = []float64{}
	}

	entry := ranking.GetByID(userID)
	if entry == nil {
		return out
	}
	out.Eligible = true
	out.Rank = entry.Rank
	out.Score = entry.Score
	out.Signals = entry.Signals
	out.Normalized = entry.Normalized
	out.Productivity = MultiplicativeScore(entry.Signals, s.cfg.StreakCap, s.cfg.Gamma)
	return out
}
