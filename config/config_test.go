package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("", map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 6.0, cfg.Tracker.MinHoursForStreak)
	assert.Equal(t, 30, cfg.Tracker.RawSessionRetentionDays)
	assert.Equal(t, 5*time.Minute, cfg.Redis.LeaderboardTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "text", cfg.LogFormat())

	ledger := cfg.Tracker.LedgerConfig()
	assert.Equal(t, study.DefaultLedgerConfig(), ledger)

	scorer, err := cfg.Ranking.ScorerConfig()
	require.NoError(t, err)
	assert.Equal(t, leaderboard.DefaultConfig(), scorer)

	engine := cfg.EngineConfig()
	assert.Equal(t, 6.0, engine.TargetHours)
	assert.Equal(t, 14, engine.IdealSampleSize)
	assert.Equal(t, stats.OpenDayToday, engine.OpenDay)
}

func TestLoadFrom_OpenDayPolicy(t *testing.T) {
	cfg, err := LoadFrom("", map[string]string{"STATS_OPEN_DAY": "last_study_day"})
	require.NoError(t, err)
	assert.Equal(t, stats.OpenDayLastStudy, cfg.EngineConfig().OpenDay)

	_, err = LoadFrom("", map[string]string{"STATS_OPEN_DAY": "yesterday"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATS_OPEN_DAY")
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	cfg, err := LoadFrom("", map[string]string{
		"STORAGE_DRIVER":               "memory",
		"TRACKER_MIN_HOURS_FOR_STREAK": "4.5",
		"TRACKER_TIMEZONE":             "UTC",
		"RANKING_MODE":                 "multiplicative",
		"APP_ENV":                      "production",
	})
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 4.5, cfg.Tracker.MinHoursForStreak)
	assert.Equal(t, 4.5, cfg.EngineConfig().TargetHours)
	assert.Equal(t, "json", cfg.LogFormat())
	assert.True(t, cfg.IsProduction())

	cal, err := cfg.Tracker.Calendar()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cal.Location())
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studyhub.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
driver = "memory"

[tracker]
min_hours_for_streak = 5
first-session-policy = "strict"

[ranking]
top_k = 3
`), 0o600))

	cfg, err := LoadFrom(path, map[string]string{"RANKING_TOP_K": "20"})
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 5.0, cfg.Tracker.MinHoursForStreak)
	assert.Equal(t, study.FirstSessionStrict, cfg.Tracker.LedgerConfig().FirstSessionPolicy)
	assert.Equal(t, 20, cfg.Ranking.TopK, "environment wins over the file")
}

func TestLoadFrom_MissingFileIsNotAnError(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"), map[string]string{})
	assert.NoError(t, err)
}

func TestValidate_CollectsErrors(t *testing.T) {
	_, err := LoadFrom("", map[string]string{
		"STORAGE_DRIVER":               "postgres",
		"TRACKER_MIN_HOURS_FOR_STREAK": "0",
		"RANKING_MODE":                 "exotic",
		"HTTP_PORT":                    "0",
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "STORAGE_DATABASE_URL")
	assert.Contains(t, msg, "HTTP_PORT")
	assert.Contains(t, msg, "RANKING_MODE")
	assert.Contains(t, msg, "min hours for streak")
}

func TestValidate_MaxSessionWithinOneDay(t *testing.T) {
	_, err := LoadFrom("", map[string]string{"TRACKER_MAX_SESSION_HOURS": "48"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACKER_MAX_SESSION_HOURS")
}

func TestValidate_BadTimezone(t *testing.T) {
	_, err := LoadFrom("", map[string]string{"TRACKER_TIMEZONE": "Mars/Olympus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRACKER_TIMEZONE")
}
