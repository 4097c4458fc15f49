// Package leaderboard содержит доменную модель рейтинга продуктивности.
// Рейтинг строится по всей когорте: сигналы каждого пользователя
// нормализуются по min-max и сводятся в один сравнимый score.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию пользователя в рейтинге.
// Rank начинается с 1 (первое место).
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// IsPodium возвращает true для первых трёх мест.
func (r Rank) IsPodium() bool {
	return r >= 1 && r <= 3
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Mode определяет формулу подсчёта score.
type Mode string

const (
	// ModeLinear - взвешенная сумма min-max нормализованных сигналов.
	ModeLinear Mode = "linear"
	// ModeMultiplicative - hours * (1 + streak/7) / (CVnorm + gamma).
	ModeMultiplicative Mode = "multiplicative"
)

// IsValid проверяет, что режим известен.
func (m Mode) IsValid() bool {
	return m == ModeLinear || m == ModeMultiplicative
}

// ParseMode разбирает режим; пустая строка означает ModeLinear.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeLinear, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNALS
// ══════════════════════════════════════════════════════════════════════════════

// Signals - сырые показатели одного пользователя.
type Signals struct {
	UserID string `json:"user_id"`

	TotalHours   float64 `json:"total_hours"`
	Streak       int     `json:"streak"`        // ledger streak без ограничения
	StreakCapped int     `json:"streak_capped"` // min(streak, cap)
	Consistency  float64 `json:"consistency"`   // % дней окна с выполненной целью
	StdDev       float64 `json:"std_dev"`       // часы, по окну

	// Для мультипликативного режима и отладки.
	CV           float64 `json:"cv"`
	NormalizedCV float64 `json:"normalized_cv"`
	Samples      int     `json:"samples"`
}

// Components - нормализованные в [0,1] сигналы.
type Components struct {
	Hours       float64 `json:"hours"`
	Streak      float64 `json:"streak"`
	Consistency float64 `json:"consistency"`
	StdDev      float64 `json:"std_dev"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry представляет одну запись рейтинга.
type Entry struct {
	Rank       Rank       `json:"rank"`
	UserID     string     `json:"user_id"`
	Score      float64    `json:"score"`
	Signals    Signals    `json:"signals"`
	Normalized Components `json:"normalized"`
}

// Clone создаёт копию записи.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// String возвращает строковое представление для логирования.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, UserID: %s, Score: %.4f}", e.Rank, e.UserID, e.Score)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING (Ranked List)
// ══════════════════════════════════════════════════════════════════════════════

// Ranking представляет полный отсортированный список пользователей.
type Ranking struct {
	entries []*Entry
	byID    map[string]*Entry
}

// NewRanking создаёт пустой Ranking.
func NewRanking() *Ranking {
	return &Ranking{
		entries: make([]*Entry, 0),
		byID:    make(map[string]*Entry),
	}
}

// Add добавляет запись в рейтинг (без автоматической сортировки).
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if entry.UserID == "" {
		return ErrInvalidUserID
	}
	if _, exists := r.byID[entry.UserID]; exists {
		return ErrDuplicateUser
	}

	r.entries = append(r.entries, entry)
	r.byID[entry.UserID] = entry
	return nil
}

// SortByScore сортирует по score (по убыванию) и присваивает ранги 1..n.
// При равном score порядок определяется UserID, поэтому результат детерминирован.
func (r *Ranking) SortByScore() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].Score != r.entries[j].Score {
			return r.entries[i].Score > r.entries[j].Score
		}
		return r.entries[i].UserID < r.entries[j].UserID
	})

	for i, entry := range r.entries {
		entry.Rank = Rank(i + 1)
	}
}

// GetByID возвращает запись по ID пользователя.
func (r *Ranking) GetByID(userID string) *Entry {
	return r.byID[userID]
}

// Top возвращает топ-N записей.
func (r *Ranking) Top(n int) []*Entry {
	if n <= 0 {
		return []*Entry{}
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]*Entry, n)
	copy(result, r.entries[:n])
	return result
}

// Neighbors возвращает соседей пользователя по рангу (±rangeSize), включая его самого.
func (r *Ranking) Neighbors(userID string, rangeSize int) []*Entry {
	entry := r.GetByID(userID)
	if entry == nil {
		return nil
	}

	idx := int(entry.Rank) - 1
	from, to := idx-rangeSize, idx+rangeSize+1
	if from < 0 {
		from = 0
	}
	if to > len(r.entries) {
		to = len(r.entries)
	}

	result := make([]*Entry, to-from)
	copy(result, r.entries[from:to])
	return result
}

// Count возвращает общее количество записей.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// IsEmpty возвращает true, если в когорте нет ни одного пользователя с сигналом.
func (r *Ranking) IsEmpty() bool {
	return len(r.entries) == 0
}

// All возвращает все записи.
func (r *Ranking) All() []*Entry {
	result := make([]*Entry, len(r.entries))
	copy(result, r.entries)
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidUserID - пустой ID пользователя.
	ErrInvalidUserID = errors.New("invalid user id: cannot be empty")

	// ErrNilEntry - попытка добавить nil запись.
	ErrNilEntry = errors.New("cannot add nil entry")

	// ErrDuplicateUser - пользователь уже есть в рейтинге.
	ErrDuplicateUser = errors.New("user already exists in ranking")

	// ErrUnknownMode - неизвестный режим подсчёта.
	ErrUnknownMode = errors.New("unknown scoring mode")

	// ErrNegativeWeight - веса должны быть неотрицательными.
	ErrNegativeWeight = errors.New("ranking weights must be non-negative")
)
