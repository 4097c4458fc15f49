package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studyhub/studyhub/internal/application/command"
	"github.com/studyhub/studyhub/internal/application/query"
	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/infrastructure/importer"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD / TRANSFER
// ══════════════════════════════════════════════════════════════════════════════

func newRecordCmd(a *app) *cobra.Command {
	var endedAt string
	cmd := &cobra.Command{
		Use:   "record <user> <duration>",
		Short: "Record a finished study session, e.g. record alice 1h30m",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[1], err)
			}
			var end time.Time
			if endedAt != "" {
				if end, err = time.Parse(time.RFC3339, endedAt); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			res, err := command.NewRecordSessionHandler(a.deps()).Handle(ctxOf(cmd), command.RecordSessionCommand{
				UserID:     args[0],
				DurationMs: d.Milliseconds(),
				EndedAt:    end,
			})
			if err != nil {
				return err
			}
			rec := res.Record
			fmt.Fprintf(out(cmd), "%s: today %s, total %s, streak %d\n",
				rec.UserID,
				timeutil.FormatDuration(rec.DailyTime),
				timeutil.FormatDuration(rec.TotalTime),
				rec.CurrentStreak,
			)
			if res.Transition.DayRolled {
				fmt.Fprintf(out(cmd), "closed %s\n", res.Transition.ArchivedDay)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endedAt, "at", "", "session end time (RFC3339, default now)")
	return cmd
}

func newTransferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <sender> <receiver> <hours>",
		Short: "Move lifetime study hours between users",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid hours %q: %w", args[2], err)
			}
			res, err := command.NewTransferTimeHandler(a.deps()).Handle(ctxOf(cmd), command.TransferTimeCommand{
				SenderID:   args[0],
				ReceiverID: args[1],
				Hours:      hours,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "moved %s from %s to %s\n",
				timeutil.FormatDuration(res.AmountMs), args[0], args[1])
			fmt.Fprintf(out(cmd), "%s: %s, %s: %s\n",
				args[0], timeutil.FormatDuration(res.SenderTotal),
				args[1], timeutil.FormatDuration(res.ReceiverTotal))
			return nil
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS / RANK
// ══════════════════════════════════════════════════════════════════════════════

func newStatsCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats <user>",
		Short: "Show a user's profile summary and daily series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := query.NewUserStatsHandler(a.store.Records, a.engine(), a.clock)
			s, err := h.Summary(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			w := out(cmd)
			fmt.Fprintf(w, "user:        %s\n", s.UserID)
			fmt.Fprintf(w, "total:       %s (%s)\n", timeutil.FormatHours(s.TotalHours), timeutil.FormatDuration(s.TotalMs))
			fmt.Fprintf(w, "today:       %s of %s (%d%%)\n", timeutil.FormatHours(s.TodayHours), timeutil.FormatHours(s.TargetHours), s.ProgressPercent)
			fmt.Fprintf(w, "streak:      %d days\n", s.CurrentStreak)
			if !s.LastStudyDate.IsZero() {
				fmt.Fprintf(w, "last study:  %s\n", humanize.RelTime(s.LastStudyDate, a.clock.Now(), "ago", "from now"))
			}

			if days <= 0 {
				return nil
			}
			series, err := h.Series(ctxOf(cmd), args[0], days)
			if err != nil {
				return err
			}
			fmt.Fprintln(w)
			for _, p := range series.Points {
				fmt.Fprintf(w, "%s  %6.2fh\n", p.Label, p.Hours)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "length of the daily series (0 hides it)")
	return cmd
}

func newRankCmd(a *app) *cobra.Command {
	var (
		mode  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "rank [user]",
		Short: "Show the leaderboard, or one user's rank breakdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lb, err := a.leaderboard()
			if err != nil {
				return err
			}
			w := out(cmd)

			if len(args) == 1 {
				b, err := lb.Breakdown(ctxOf(cmd), args[0], leaderboard.Mode(mode))
				if err != nil {
					return err
				}
				if !b.Eligible {
					fmt.Fprintf(w, "%s is not ranked: no study time recorded\n", b.UserID)
					return nil
				}
				fmt.Fprintf(w, "%s is %s of %s (%s, score %.4f)\n",
					b.UserID, humanize.Ordinal(int(b.Rank)), humanize.Comma(int64(b.Of)), b.Mode, b.Score)
				fmt.Fprintf(w, "hours %.2f, streak %d, consistency %.1f%%, stddev %.2f\n",
					b.Signals.TotalHours, b.Signals.Streak, b.Signals.Consistency, b.Signals.StdDev)
				return nil
			}

			snap, err := lb.Handle(ctxOf(cmd), query.GetLeaderboardQuery{
				Mode:  leaderboard.Mode(mode),
				Limit: limit,
				Fresh: true,
			})
			if shared.IsNoData(err) {
				fmt.Fprintln(w, "no ranked users yet")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s leaderboard, %s eligible\n", snap.Mode, humanize.Comma(int64(snap.Eligible)))
			for _, e := range snap.Entries {
				fmt.Fprintf(w, "%3d. %-20s %8.4f  %s\n",
					e.Rank, e.UserID, e.Score, timeutil.FormatHours(e.Signals.TotalHours))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "scoring mode: linear or multiplicative (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (default top-K)")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT / EXPORT / MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON database file, converting legacy numeric history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := importer.New(a.store.Records, a.cal, a.clock, a.log).Import(ctxOf(cmd), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "imported %s users (%s with legacy history)\n",
				humanize.Comma(int64(res.Users)), humanize.Comma(int64(res.Migrated)))
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every record as a JSON database file (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = out(cmd)
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := importer.New(a.store.Records, a.cal, a.clock, a.log).Export(ctxOf(cmd), w)
			if err != nil {
				return err
			}
			if w != out(cmd) {
				fmt.Fprintf(out(cmd), "exported %s users\n", humanize.Comma(int64(n)))
			}
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the store schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// OpenStore already applied pending migrations.
			if err := a.store.Ping(ctxOf(cmd)); err != nil {
				return err
			}
			driver := strings.ToLower(string(a.store.Driver))
			if !status {
				fmt.Fprintf(out(cmd), "%s store is up to date\n", driver)
				return nil
			}

			migrations, err := a.store.Migrations(ctxOf(cmd))
			if err != nil {
				return err
			}
			if len(migrations) == 0 {
				fmt.Fprintf(out(cmd), "%s store has no versioned migrations\n", driver)
				return nil
			}
			for _, m := range migrations {
				state := "pending"
				if m.Applied {
					state = "applied " + humanize.RelTime(m.AppliedAt, a.clock.Now(), "ago", "from now")
				}
				fmt.Fprintf(out(cmd), "%3d  %-28s %s\n", m.Version, m.Name, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list versioned migrations and when they were applied")
	return cmd
}
