package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/circuitbreaker"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD QUERY
// Возвращает топ-K рейтинга. Снапшот берётся из кеша, при промахе или
// недоступном кеше рейтинг пересчитывается по ListAll.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса рейтинга.
type GetLeaderboardQuery struct {
	// Mode - формула (пусто = режим из конфигурации).
	Mode leaderboard.Mode

	// Limit - сколько записей вернуть (0 = TopK).
	Limit int

	// Fresh - пересчитать, не читая кеш.
	Fresh bool
}

// LeaderboardDeps - зависимости обработчика рейтинга.
type LeaderboardDeps struct {
	Records  study.Repository
	Engine   *stats.Engine
	Config   leaderboard.Config
	Cache    leaderboard.SnapshotCache // nil = без кеша
	CacheTTL time.Duration
	Breaker  *circuitbreaker.CircuitBreaker
	Clock    timeutil.Clock
	Logger   *slog.Logger
}

// LeaderboardHandler обслуживает рейтинг и расшифровку позиции.
type LeaderboardHandler struct {
	records  study.Repository
	scorers  map[leaderboard.Mode]*leaderboard.Scorer
	mode     leaderboard.Mode
	topK     int
	cache    leaderboard.SnapshotCache
	cacheTTL time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewLeaderboardHandler создаёт обработчик. Для каждого режима строится свой Scorer.
func NewLeaderboardHandler(deps LeaderboardDeps) (*LeaderboardHandler, error) {
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Breaker == nil {
		deps.Breaker = circuitbreaker.CacheBreaker(deps.Logger)
	}

	scorers := make(map[leaderboard.Mode]*leaderboard.Scorer, 2)
	for _, mode := range []leaderboard.Mode{leaderboard.ModeLinear, leaderboard.ModeMultiplicative} {
		cfg := deps.Config
		cfg.Mode = mode
		scorer, err := leaderboard.NewScorer(cfg, deps.Engine)
		if err != nil {
			return nil, err
		}
		scorers[mode] = scorer
	}
	if _, ok := scorers[deps.Config.Mode]; !ok {
		return nil, fmt.Errorf("%w: %q", leaderboard.ErrUnknownMode, deps.Config.Mode)
	}

	return &LeaderboardHandler{
		records:  deps.Records,
		scorers:  scorers,
		mode:     deps.Config.Mode,
		topK:     deps.Config.TopK,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		breaker:  deps.Breaker,
		clock:    deps.Clock,
		logger:   deps.Logger.With(slog.String("component", "leaderboard_query")),
	}, nil
}

// DefaultMode возвращает режим из конфигурации.
func (h *LeaderboardHandler) DefaultMode() leaderboard.Mode {
	return h.mode
}

func (h *LeaderboardHandler) resolveMode(mode leaderboard.Mode) (leaderboard.Mode, error) {
	if mode == "" {
		return h.mode, nil
	}
	if _, ok := h.scorers[mode]; !ok {
		return "", shared.WrapError("leaderboard", "Query", shared.ErrInvalidInput, "unknown ranking mode",
			fmt.Errorf("%w: %q", leaderboard.ErrUnknownMode, mode))
	}
	return mode, nil
}

// Handle возвращает снапшот рейтинга. Пустая когорта - shared.ErrNoData.
func (h *LeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*leaderboard.Snapshot, error) {
	mode, err := h.resolveMode(q.Mode)
	if err != nil {
		return nil, err
	}
	if q.Limit < 0 {
		return nil, shared.NewDomainError("leaderboard", "Query", shared.ErrInvalidInput, "limit cannot be negative")
	}

	var snap *leaderboard.Snapshot
	if !q.Fresh {
		snap = h.cached(ctx, mode)
	}
	if snap == nil {
		snap, err = h.Rebuild(ctx, mode)
		if err != nil {
			return nil, err
		}
	}

	if snap.NoData() {
		return snap, shared.NewDomainError("leaderboard", "Query", shared.ErrNoData, "no user has recorded study time")
	}
	if q.Limit > 0 && q.Limit < len(snap.Entries) {
		trimmed := *snap
		trimmed.Entries = snap.Entries[:q.Limit]
		snap = &trimmed
	}
	return snap, nil
}

// cached читает кеш через circuit breaker. Любая ошибка - промах.
// При открытом breaker кеш не опрашивается, рейтинг строится из хранилища.
func (h *LeaderboardHandler) cached(ctx context.Context, mode leaderboard.Mode) *leaderboard.Snapshot {
	if h.cache == nil {
		return nil
	}
	var snap *leaderboard.Snapshot
	err := h.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		s, err := h.cache.GetSnapshot(ctx, mode)
		snap = s
		return err
	}, h.bypassCache)
	if err != nil {
		h.logger.Warn("leaderboard cache read failed", slog.String("error", err.Error()))
		return nil
	}
	return snap
}

// bypassCache - fallback для отклонённых breaker запросов к кешу.
func (h *LeaderboardHandler) bypassCache(reason error) error {
	h.logger.Debug("leaderboard cache bypassed", slog.String("reason", reason.Error()))
	return nil
}

// Rebuild пересчитывает рейтинг по текущему состоянию хранилища и
// кладёт снапшот в кеш. Ошибка записи в кеш не прерывает запрос.
func (h *LeaderboardHandler) Rebuild(ctx context.Context, mode leaderboard.Mode) (*leaderboard.Snapshot, error) {
	mode, err := h.resolveMode(mode)
	if err != nil {
		return nil, err
	}

	records, err := h.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: list records: %w", err)
	}

	now := h.clock.Now()
	ranking := h.scorers[mode].Build(records, now)
	snap := leaderboard.NewSnapshot(ranking, h.topK, mode, now)

	if h.cache != nil {
		err := h.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
			return h.cache.SetSnapshot(ctx, snap, h.cacheTTL)
		}, h.bypassCache)
		if err != nil {
			h.logger.Warn("leaderboard cache write failed", slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

// Invalidate сбрасывает кеш после изменения записей.
func (h *LeaderboardHandler) Invalidate(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Invalidate(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK BREAKDOWN QUERY
// Подробный расчёт позиции одного пользователя (rank debug).
// ══════════════════════════════════════════════════════════════════════════════

// Breakdown возвращает расчёт для userID. Всегда считается заново:
// позиция вне топ-K в снапшоте отсутствует.
func (h *LeaderboardHandler) Breakdown(ctx context.Context, userID string, mode leaderboard.Mode) (*leaderboard.Breakdown, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, fmt.Errorf("rank_breakdown: %w", err)
	}
	mode, err := h.resolveMode(mode)
	if err != nil {
		return nil, err
	}

	records, err := h.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("rank_breakdown: list records: %w", err)
	}
	return h.scorers[mode].Explain(records, userID, h.clock.Now()), nil
}
