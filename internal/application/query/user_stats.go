// Package query contains read operations following CQRS pattern.
// Queries never modify record state; they read a snapshot and derive views.
package query

import (
	"context"
	"fmt"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS QUERIES
// Profile summary, chart series and busiest hours for one user.
// ══════════════════════════════════════════════════════════════════════════════

// MaxSeriesDays bounds the chart series length.
const MaxSeriesDays = 365

// SeriesDTO is a labelled daily series for an external chart renderer.
type SeriesDTO struct {
	UserID      string           `json:"user_id"`
	Days        int              `json:"days"`
	TargetHours float64          `json:"target_hours"`
	Points      []stats.DayPoint `json:"points"`
	Total       float64          `json:"total_hours"`
}

// IntervalsDTO wraps the busiest-hours report.
type IntervalsDTO struct {
	UserID  string               `json:"user_id"`
	Report  stats.IntervalReport `json:"report"`
	Summary string               `json:"summary"`
}

// UserStatsHandler serves the per-user read models.
type UserStatsHandler struct {
	records study.Repository
	engine  *stats.Engine
	clock   timeutil.Clock
}

// NewUserStatsHandler creates a new UserStatsHandler.
func NewUserStatsHandler(records study.Repository, engine *stats.Engine, clock timeutil.Clock) *UserStatsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &UserStatsHandler{records: records, engine: engine, clock: clock}
}

func (h *UserStatsHandler) load(ctx context.Context, op, userID string) (*study.StudyRecord, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rec, err := h.records.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// Summary returns the profile summary.
func (h *UserStatsHandler) Summary(ctx context.Context, userID string) (*stats.Summary, error) {
	rec, err := h.load(ctx, "user_summary", userID)
	if err != nil {
		return nil, err
	}
	s := h.engine.Summarize(rec, h.clock.Now())
	return &s, nil
}

// Series returns the last days of study hours, oldest first.
func (h *UserStatsHandler) Series(ctx context.Context, userID string, days int) (*SeriesDTO, error) {
	if days <= 0 || days > MaxSeriesDays {
		return nil, shared.NewDomainError("stats", "Series", shared.ErrInvalidInput,
			fmt.Sprintf("days must be between 1 and %d", MaxSeriesDays))
	}
	rec, err := h.load(ctx, "user_series", userID)
	if err != nil {
		return nil, err
	}

	points := h.engine.Points(rec, days, h.clock.Now())
	dto := &SeriesDTO{
		UserID:      userID,
		Days:        days,
		TargetHours: h.engine.Config().TargetHours,
		Points:      points,
	}
	for _, p := range points {
		dto.Total += p.Hours
	}
	return dto, nil
}

// Intervals returns the busiest hours of the day over the stats window.
func (h *UserStatsHandler) Intervals(ctx context.Context, userID string) (*IntervalsDTO, error) {
	rec, err := h.load(ctx, "user_intervals", userID)
	if err != nil {
		return nil, err
	}
	report := h.engine.Intervals(rec, h.clock.Now())
	return &IntervalsDTO{UserID: userID, Report: report, Summary: report.String()}, nil
}
