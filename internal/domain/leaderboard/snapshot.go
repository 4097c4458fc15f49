package leaderboard

import (
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - рейтинг в определённый момент времени.
// Снапшоты кешируются (CQRS Read Model) и отдаются без пересчёта.
type Snapshot struct {
	// ID - уникальный идентификатор снапшота.
	ID string `json:"id"`

	// Mode - формула, которой посчитан score.
	Mode Mode `json:"mode"`

	// GeneratedAt - время построения.
	GeneratedAt time.Time `json:"generated_at"`

	// Eligible - сколько пользователей вошли в когорту (TotalHours > 0).
	Eligible int `json:"eligible"`

	// Entries - топ-K записей, отсортированы по рангу.
	Entries []*Entry `json:"entries"`
}

// NewSnapshot создаёт снапшот из топ-K записей рейтинга.
func NewSnapshot(ranking *Ranking, topK int, mode Mode, now time.Time) *Snapshot {
	snap := &Snapshot{
		ID:          uuid.NewString(),
		Mode:        mode,
		GeneratedAt: now,
		Entries:     make([]*Entry, 0),
	}
	if ranking == nil {
		return snap
	}

	snap.Eligible = ranking.Count()
	for _, e := range ranking.Top(topK) {
		snap.Entries = append(snap.Entries, e.Clone())
	}
	return snap
}

// NoData возвращает true, если в когорте не было ни одного пользователя с сигналом.
func (s *Snapshot) NoData() bool {
	return s == nil || s.Eligible == 0
}

// Find возвращает запись пользователя, если он попал в топ.
func (s *Snapshot) Find(userID string) *Entry {
	if s == nil {
		return nil
	}
	for _, e := range s.Entries {
		if e.UserID == userID {
			return e
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKDOWN (rank debug)
// ══════════════════════════════════════════════════════════════════════════════

// Breakdown - подробный расчёт для одного пользователя.
type Breakdown struct {
	UserID   string  `json:"user_id"`
	Eligible bool    `json:"eligible"`
	Rank     Rank    `json:"rank,omitempty"`
	Of       int     `json:"of"`
	Mode     Mode    `json:"mode"`
	Score    float64 `json:"score"`
	Weights  Weights `json:"weights"`

	Signals    Signals    `json:"signals"`
	Normalized Components `json:"normalized"`

	// Показатели по всей истории, как в мультипликативной формуле.
	LoggedDayHours []float64 `json:"logged_day_hours"`
	Mean           float64   `json:"mean"`
	StdDev         float64   `json:"std_dev"`
	Productivity   float64   `json:"productivity"`
}
