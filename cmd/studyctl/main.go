// Package main provides studyctl, the operator CLI for a StudyHub store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/studyhub/studyhub/config"
	"github.com/studyhub/studyhub/internal/application/command"
	"github.com/studyhub/studyhub/internal/application/query"
	"github.com/studyhub/studyhub/internal/bootstrap"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/logger"
	"github.com/studyhub/studyhub/pkg/retry"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs. Fields set before Execute are kept,
// which lets tests inject a config and an already opened store.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	clock timeutil.Clock
	cal   timeutil.Calendar
	store *bootstrap.Store

	ownsStore bool
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "studyctl",
		Short:             "Inspect and maintain a StudyHub record store",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	rootCmd.AddCommand(newRecordCmd(a))
	rootCmd.AddCommand(newTransferCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newRankCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newMigrateCmd(a))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}
	if a.log == nil {
		a.log = logger.New(logger.Options{
			Output: cmd.ErrOrStderr(),
			Level:  logger.ParseLevel(a.cfg.Log.Level),
			Format: logger.FormatText,
		})
	}
	if a.clock == nil {
		a.clock = timeutil.SystemClock{}
	}

	cal, err := a.cfg.Tracker.Calendar()
	if err != nil {
		return err
	}
	a.cal = cal

	if a.store == nil {
		store, err := bootstrap.OpenStore(cmd.Context(), a.cfg, cal, a.clock, a.log)
		if err != nil {
			return err
		}
		a.store = store
		a.ownsStore = true
	}
	return nil
}

func (a *app) teardown() error {
	if !a.ownsStore || a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) deps() command.Deps {
	return command.Deps{
		Records: a.store.Records,
		Ledger:  study.NewLedger(a.cfg.Tracker.LedgerConfig(), a.cal),
		Retrier: retry.StorageRetrier(a.store.RetryIf, a.log),
		Clock:   a.clock,
		Logger:  a.log,
	}
}

func (a *app) engine() *stats.Engine {
	return stats.NewEngine(a.cfg.EngineConfig(), a.cal)
}

func (a *app) leaderboard() (*query.LeaderboardHandler, error) {
	rankingCfg, err := a.cfg.Ranking.ScorerConfig()
	if err != nil {
		return nil, err
	}
	return query.NewLeaderboardHandler(query.LeaderboardDeps{
		Records: a.store.Records,
		Engine:  a.engine(),
		Config:  rankingCfg,
		Clock:   a.clock,
		Logger:  a.log,
	})
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
