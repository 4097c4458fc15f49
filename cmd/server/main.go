// Package main - точка входа StudyHub API.
//
// Процесс поднимает:
// - хранилище записей (memory, sqlite или postgres)
// - опциональный Redis для кеша рейтинга и активных сессий
// - шину событий и её обработчики
// - планировщик фоновых задач
// - HTTP API
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyhub/studyhub/config"
	"github.com/studyhub/studyhub/internal/application/command"
	"github.com/studyhub/studyhub/internal/application/eventhandler"
	"github.com/studyhub/studyhub/internal/application/query"
	"github.com/studyhub/studyhub/internal/bootstrap"
	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/internal/infrastructure/messaging"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/memory"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/redis"
	"github.com/studyhub/studyhub/internal/infrastructure/scheduler"
	"github.com/studyhub/studyhub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/studyhub/studyhub/internal/interface/http"
	"github.com/studyhub/studyhub/internal/interface/http/handlers"
	"github.com/studyhub/studyhub/pkg/keylock"
	"github.com/studyhub/studyhub/pkg/logger"
	"github.com/studyhub/studyhub/pkg/retry"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.Setup(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.LogFormat()),
	})
	log.Info("starting StudyHub",
		slog.String("version", version),
		slog.String("env", string(cfg.App.Environment)),
		slog.String("storage", string(cfg.Storage.Driver)),
		slog.String("timezone", cfg.Tracker.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ДОМЕН: календарь, леджер, движок статистики
	// ─────────────────────────────────────────────────────────────────────────
	cal, err := cfg.Tracker.Calendar()
	if err != nil {
		return err
	}
	clock := timeutil.SystemClock{}
	ledger := study.NewLedger(cfg.Tracker.LedgerConfig(), cal)
	engine := stats.NewEngine(cfg.EngineConfig(), cal)
	rankingCfg, err := cfg.Ranking.ScorerConfig()
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩЕ ЗАПИСЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg, cal, clock, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing record store...")
		if err := store.Close(); err != nil {
			log.Warn("record store close failed", logger.Err(err))
		}
	}()

	health := handlers.NewHealthChecker(version)
	health.AddCheck("store", handlers.PingCheck(store))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (опционально): кеш рейтинга и активные сессии
	// ─────────────────────────────────────────────────────────────────────────
	var (
		snapshotCache leaderboard.SnapshotCache = memory.NewSnapshotCache(clock)
		sessions      study.SessionTracker      = memory.NewSessionTracker()
	)
	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig(cfg.Redis.URL)
		redisCfg.KeyPrefix = cfg.Redis.KeyPrefix

		cache, err := redis.NewCache(ctx, redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, using in-process cache", logger.Err(err))
		} else {
			defer cache.Close()
			snapshotCache = redis.NewLeaderboardCache(cache)
			sessions = redis.NewSessionTracker(cache)
			health.AddCheck("redis", handlers.PingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if err := eventhandler.NewOnRecordsChangedHandler(snapshotCache, 0, log).Register(bus); err != nil {
		return fmt.Errorf("register records handler: %w", err)
	}
	if err := eventhandler.NewOnStreakChangedHandler(log).Register(bus); err != nil {
		return fmt.Errorf("register streak handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Records:   store.Records,
		Ledger:    ledger,
		Locks:     keylock.New(),
		Sessions:  sessions,
		Publisher: bus,
		Retrier:   retry.StorageRetrier(store.RetryIf, log),
		Clock:     clock,
		Logger:    log,
	}
	sessionHandler := command.NewSessionHandler(deps, cfg.Tracker.MaxSession())

	lb, err := query.NewLeaderboardHandler(query.LeaderboardDeps{
		Records:  store.Records,
		Engine:   engine,
		Config:   rankingCfg,
		Cache:    snapshotCache,
		CacheTTL: cfg.Redis.LeaderboardTTL,
		Clock:    clock,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("build leaderboard: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			Logger:     log,
			Clock:      clock,
			JobTimeout: cfg.Scheduler.JobTimeout,
		})
		modes := []leaderboard.Mode{leaderboard.ModeLinear, leaderboard.ModeMultiplicative}
		if err := sched.Register(
			jobs.NewRebuildLeaderboardJob(lb, modes, bus, log),
			scheduler.Every(cfg.Scheduler.RebuildLeaderboardEvery),
		); err != nil {
			return err
		}
		if err := sched.Register(
			jobs.NewCloseStaleSessionsJob(sessionHandler, log),
			scheduler.Every(cfg.Scheduler.CloseStaleSessionsEvery),
		); err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		RecordSession: command.NewRecordSessionHandler(deps),
		TransferTime:  command.NewTransferTimeHandler(deps),
		Sessions:      sessionHandler,
		UserStats:     query.NewUserStatsHandler(store.Records, engine, clock),
		Leaderboard:   lb,
		Health:        health,
		Logger:        log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("StudyHub is running", slog.String("address", httpCfg.Address()))

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("HTTP shutdown failed", logger.Err(err))
	}
	log.Info("shutdown completed", logger.Latency(time.Since(start)))
	return nil
}
