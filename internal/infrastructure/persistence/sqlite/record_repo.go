// Package sqlite implements the record store on an embedded SQLite file.
// It is the default store for single-node deployments and for studyctl.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// Options configures the store.
type Options struct {
	// Calendar dates legacy history on load.
	Calendar timeutil.Calendar
	// Clock anchors legacy history for records that never studied.
	Clock timeutil.Clock
	// Logger, slog.Default() when nil.
	Logger *slog.Logger
}

// RecordRepository persists study records in one SQLite table.
type RecordRepository struct {
	db     *sql.DB
	cal    timeutil.Calendar
	clock  timeutil.Clock
	logger *slog.Logger
}

var (
	_ study.Repository = (*RecordRepository)(nil)
	_ study.Transactor = (*RecordRepository)(nil)
)

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string, opts Options) (*RecordRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, shared.StorageError("Open", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, shared.StorageError("Open", err)
	}
	// SQLite allows one writer; a single connection serializes access.
	db.SetMaxOpenConns(1)

	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := &RecordRepository{
		db:     db,
		cal:    opts.Calendar,
		clock:  opts.Clock,
		logger: opts.Logger.With(slog.String("component", "sqlite_store")),
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *RecordRepository) Close() error {
	return r.db.Close()
}

// Ping checks the database handle.
func (r *RecordRepository) Ping(ctx context.Context) error {
	return shared.StorageError("Ping", r.db.PingContext(ctx))
}

// Migrate creates the schema if needed. It is idempotent.
func (r *RecordRepository) Migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS study_records (
			user_id TEXT PRIMARY KEY,
			total_time INTEGER NOT NULL DEFAULT 0,
			daily_time INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			last_study_date INTEGER NOT NULL DEFAULT 0,
			history TEXT NOT NULL DEFAULT '[]',
			raw_sessions TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_study_records_total_time ON study_records(total_time DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return shared.StorageError("Migrate", err)
		}
	}
	return nil
}

const selectColumns = `user_id, total_time, daily_time, current_streak, last_study_date, history, raw_sessions`

// GetOrCreate returns the record for userID, inserting the zero record first.
// A record still in the legacy history format is rewritten in canonical form.
func (r *RecordRepository) GetOrCreate(ctx context.Context, userID string) (*study.StudyRecord, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO study_records (user_id, updated_at) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, shared.StorageError("GetOrCreate", err)
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM study_records WHERE user_id = ?`, userID)
	rec, migrated, err := r.scan(row)
	if err != nil {
		return nil, shared.StorageError("GetOrCreate", err)
	}

	if migrated {
		r.logger.Info("migrated legacy history", slog.String("user_id", userID), slog.Int("days", len(rec.History)))
		if err := r.Save(ctx, userID, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Save upserts the whole record.
func (r *RecordRepository) Save(ctx context.Context, userID string, record *study.StudyRecord) error {
	if userID == "" {
		return shared.ErrEmptyUserID
	}
	if err := upsert(ctx, r.db, userID, record); err != nil {
		return shared.StorageError("Save", err)
	}
	return nil
}

// SaveAll upserts several records in one transaction.
func (r *RecordRepository) SaveAll(ctx context.Context, records ...*study.StudyRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return shared.StorageError("SaveAll", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, rec := range records {
		if rec == nil || rec.UserID == "" {
			return shared.ErrEmptyUserID
		}
		if err = upsert(ctx, tx, rec.UserID, rec); err != nil {
			return shared.StorageError("SaveAll", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return shared.StorageError("SaveAll", err)
	}
	return nil
}

// ListAll returns every record ordered by user id.
func (r *RecordRepository) ListAll(ctx context.Context) ([]*study.StudyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM study_records ORDER BY user_id`)
	if err != nil {
		return nil, shared.StorageError("ListAll", err)
	}
	defer rows.Close()

	out := make([]*study.StudyRecord, 0)
	for rows.Next() {
		rec, _, err := r.scan(rows)
		if err != nil {
			return nil, shared.StorageError("ListAll", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageError("ListAll", err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW MAPPING
// ══════════════════════════════════════════════════════════════════════════════

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func upsert(ctx context.Context, db execer, userID string, rec *study.StudyRecord) error {
	doc, err := study.ToDocument(rec)
	if err != nil {
		return err
	}
	sessions, err := json.Marshal(doc.RawSessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO study_records (user_id, total_time, daily_time, current_streak, last_study_date, history, raw_sessions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_time = excluded.total_time,
			daily_time = excluded.daily_time,
			current_streak = excluded.current_streak,
			last_study_date = excluded.last_study_date,
			history = excluded.history,
			raw_sessions = excluded.raw_sessions,
			updated_at = excluded.updated_at`,
		userID, doc.TotalTime, doc.DailyTime, doc.CurrentStreak, doc.LastStudyDate,
		string(doc.History), string(sessions), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (r *RecordRepository) scan(s scanner) (*study.StudyRecord, bool, error) {
	var (
		userID   string
		doc      study.Document
		history  string
		sessions string
	)
	err := s.Scan(&userID, &doc.TotalTime, &doc.DailyTime, &doc.CurrentStreak, &doc.LastStudyDate, &history, &sessions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, shared.WrapError("storage", "scan", shared.ErrNotFound, "record not found", err)
	}
	if err != nil {
		return nil, false, err
	}

	doc.History = json.RawMessage(history)
	if sessions != "" {
		if err := json.Unmarshal([]byte(sessions), &doc.RawSessions); err != nil {
			return nil, false, fmt.Errorf("decode sessions for %s: %w", userID, err)
		}
	}
	return study.FromDocument(userID, doc, r.cal, r.clock.Now())
}
