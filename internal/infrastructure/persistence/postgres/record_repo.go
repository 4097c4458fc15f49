package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// RecordRepository implements study.Repository on PostgreSQL.
type RecordRepository struct {
	conn   *Connection
	cal    timeutil.Calendar
	clock  timeutil.Clock
	logger *slog.Logger
}

var (
	_ study.Repository = (*RecordRepository)(nil)
	_ study.Transactor = (*RecordRepository)(nil)
)

// NewRecordRepository creates a new PostgreSQL record repository.
func NewRecordRepository(conn *Connection, cal timeutil.Calendar, clock timeutil.Clock, logger *slog.Logger) *RecordRepository {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordRepository{
		conn:   conn,
		cal:    cal,
		clock:  clock,
		logger: logger.With(slog.String("component", "postgres_store")),
	}
}

const selectColumns = `user_id, total_time, daily_time, current_streak, last_study_date, history, raw_sessions`

// GetOrCreate returns the record for userID, inserting the zero record first.
// Legacy history is rewritten in canonical form on first read.
func (r *RecordRepository) GetOrCreate(ctx context.Context, userID string) (*study.StudyRecord, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}

	_, err := r.conn.pool.Exec(ctx,
		`INSERT INTO study_records (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, shared.StorageError("GetOrCreate", err)
	}

	row := r.conn.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM study_records WHERE user_id = $1`, userID)
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
	if err := upsert(ctx, r.conn.pool, userID, record); err != nil {
		return shared.StorageError("Save", err)
	}
	return nil
}

// SaveAll upserts several records in one transaction.
func (r *RecordRepository) SaveAll(ctx context.Context, records ...*study.StudyRecord) error {
	for _, rec := range records {
		if rec == nil || rec.UserID == "" {
			return shared.ErrEmptyUserID
		}
	}
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := upsert(ctx, tx, rec.UserID, rec); err != nil {
				return err
			}
		}
		return nil
	})
	return shared.StorageError("SaveAll", err)
}

// LogTransfer appends a row to the transfer audit table.
func (r *RecordRepository) LogTransfer(ctx context.Context, senderID, receiverID string, amountMs int64) error {
	_, err := r.conn.pool.Exec(ctx,
		`INSERT INTO time_transfers (sender_id, receiver_id, amount_ms) VALUES ($1, $2, $3)`,
		senderID, receiverID, amountMs)
	return shared.StorageError("LogTransfer", err)
}

// ListAll returns every record ordered by user id.
func (r *RecordRepository) ListAll(ctx context.Context) ([]*study.StudyRecord, error) {
	rows, err := r.conn.pool.Query(ctx, `SELECT `+selectColumns+` FROM study_records ORDER BY user_id`)
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

// Ping checks database connectivity.
func (r *RecordRepository) Ping(ctx context.Context) error {
	return shared.StorageError("Ping", r.conn.Ping(ctx))
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func upsert(ctx context.Context, q Querier, userID string, rec *study.StudyRecord) error {
	doc, err := study.ToDocument(rec)
	if err != nil {
		return err
	}
	sessions, err := json.Marshal(doc.RawSessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO study_records (user_id, total_time, daily_time, current_streak, last_study_date, history, raw_sessions, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_time = EXCLUDED.total_time,
			daily_time = EXCLUDED.daily_time,
			current_streak = EXCLUDED.current_streak,
			last_study_date = EXCLUDED.last_study_date,
			history = EXCLUDED.history,
			raw_sessions = EXCLUDED.raw_sessions,
			updated_at = NOW()`,
		userID, doc.TotalTime, doc.DailyTime, doc.CurrentStreak, doc.LastStudyDate,
		string(doc.History), string(sessions))
	return err
}

func (r *RecordRepository) scan(row pgx.Row) (*study.StudyRecord, bool, error) {
	var (
		userID   string
		doc      study.Document
		history  []byte
		sessions []byte
	)
	err := row.Scan(&userID, &doc.TotalTime, &doc.DailyTime, &doc.CurrentStreak, &doc.LastStudyDate, &history, &sessions)
	if IsNoRows(err) {
		return nil, false, shared.WrapError("storage", "scan", shared.ErrNotFound, "record not found", err)
	}
	if err != nil {
		return nil, false, err
	}

	doc.History = json.RawMessage(history)
	if len(sessions) > 0 {
		if err := json.Unmarshal(sessions, &doc.RawSessions); err != nil {
			return nil, false, fmt.Errorf("decode sessions for %s: %w", userID, err)
		}
	}
	return study.FromDocument(userID, doc, r.cal, r.clock.Now())
}
