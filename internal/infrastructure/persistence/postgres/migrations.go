package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDY RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per user. Times are milliseconds; last_study_date is epoch ms, 0 = never.
CREATE TABLE IF NOT EXISTS study_records (
    user_id TEXT PRIMARY KEY,
    total_time BIGINT NOT NULL DEFAULT 0,
    daily_time BIGINT NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    last_study_date BIGINT NOT NULL DEFAULT 0,
    history JSONB NOT NULL DEFAULT '[]'::jsonb,
    raw_sessions JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_time CHECK (total_time >= 0),
    CONSTRAINT valid_daily_time CHECK (daily_time >= 0),
    CONSTRAINT valid_streak CHECK (current_streak >= 0)
);

CREATE INDEX IF NOT EXISTS idx_study_records_total_time ON study_records(total_time DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS study_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: TRANSFER AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS time_transfers (
    id BIGSERIAL PRIMARY KEY,
    sender_id TEXT NOT NULL REFERENCES study_records(user_id),
    receiver_id TEXT NOT NULL REFERENCES study_records(user_id),
    amount_ms BIGINT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_amount CHECK (amount_ms > 0),
    CONSTRAINT different_users CHECK (sender_id != receiver_id)
);

CREATE INDEX IF NOT EXISTS idx_time_transfers_sender ON time_transfers(sender_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_time_transfers_receiver ON time_transfers(receiver_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS time_transfers;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_study_records",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_time_transfers",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
