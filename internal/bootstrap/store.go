// Package bootstrap opens the infrastructure selected by configuration.
// Both binaries go through it so the server and the CLI see the same store.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyhub/studyhub/config"
	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/memory"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/postgres"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/sqlite"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// Store is an opened record store.
type Store struct {
	Records study.Repository
	Driver  config.StorageDriver

	// RetryIf classifies store errors worth another attempt.
	RetryIf func(error) bool

	ping       func(ctx context.Context) error
	close      func() error
	migrations func(ctx context.Context) ([]MigrationStatus, error)
}

// MigrationStatus is one versioned schema migration of the store.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrations lists the store's versioned migrations. Drivers without
// versioned migrations return nil.
func (s *Store) Migrations(ctx context.Context) ([]MigrationStatus, error) {
	if s.migrations == nil {
		return nil, nil
	}
	return s.migrations(ctx)
}

// Ping checks the backing database.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the store.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore opens the driver named by cfg.Storage and brings its schema up to date.
func OpenStore(ctx context.Context, cfg *config.Config, cal timeutil.Calendar, clock timeutil.Clock, log *slog.Logger) (*Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store, records are lost on exit")
		return &Store{
			Records: memory.NewRecordRepository(),
			Driver:  config.DriverMemory,
			RetryIf: func(error) bool { return false },
		}, nil

	case config.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, sqlite.Options{Calendar: cal, Clock: clock, Logger: log})
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.Storage.SQLitePath, err)
		}
		log.Info("sqlite store ready", slog.String("path", cfg.Storage.SQLitePath))
		return &Store{
			Records: repo,
			Driver:  config.DriverSQLite,
			RetryIf: shared.IsStorage,
			ping:    repo.Ping,
			close:   repo.Close,
		}, nil

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.Storage.DatabaseURL)
		pgCfg.MaxConns = cfg.Storage.MaxConns
		pgCfg.MinConns = cfg.Storage.MinConns

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		migrator := postgres.NewMigrator(conn)
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("postgres store ready", slog.Int("migrations_applied", applied))

		return &Store{
			Records: postgres.NewRecordRepository(conn, cal, clock, log),
			Driver:  config.DriverPostgres,
			RetryIf: postgres.IsTransient,
			ping:    conn.Ping,
			close: func() error {
				conn.Close()
				return nil
			},
			migrations: func(ctx context.Context) ([]MigrationStatus, error) {
				status, err := migrator.Status(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]MigrationStatus, len(status))
				for i, m := range status {
					out[i] = MigrationStatus{Version: m.Version, Name: m.Name, Applied: m.IsApplied, AppliedAt: m.AppliedAt}
				}
				return out, nil
			},
		}, nil
	}
	return nil, errors.New("unknown storage driver: " + string(cfg.Storage.Driver))
}
