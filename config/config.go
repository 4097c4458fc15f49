// Package config loads StudyHub configuration.
//
// Sources, lowest precedence first: struct defaults (envDefault tags), an
// optional TOML file named by STUDYHUB_CONFIG_FILE, a .env file, and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// FileEnvVar names the optional TOML config file.
const FileEnvVar = "STUDYHUB_CONFIG_FILE"

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// StorageDriver selects the record store.
type StorageDriver string

const (
	DriverMemory   StorageDriver = "memory"
	DriverSQLite   StorageDriver = "sqlite"
	DriverPostgres StorageDriver = "postgres"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Tracker   TrackerConfig   `envPrefix:"TRACKER_"`
	Stats     StatsConfig     `envPrefix:"STATS_"`
	Ranking   RankingConfig   `envPrefix:"RANKING_"`
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name            string        `env:"NAME" envDefault:"studyhub"`
	Environment     Environment   `env:"ENV" envDefault:"development"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT"` // json or text; empty picks by environment
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host               string        `env:"HOST" envDefault:"0.0.0.0"`
	Port               int           `env:"PORT" envDefault:"8080"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// StorageConfig holds record store settings.
type StorageConfig struct {
	Driver       StorageDriver `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"studyhub.db"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	MaxConns     int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns     int32         `env:"MIN_CONNS" envDefault:"1"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds Redis settings. Redis is optional.
type RedisConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"false"`
	URL            string        `env:"URL" envDefault:"redis://localhost:6379/0"`
	LeaderboardTTL time.Duration `env:"LEADERBOARD_TTL" envDefault:"5m"`
	KeyPrefix      string        `env:"KEY_PREFIX" envDefault:"studyhub:"`
}

// TrackerConfig holds the session ledger settings.
type TrackerConfig struct {
	Timezone                string  `env:"TIMEZONE" envDefault:"Local"`
	MinHoursForStreak       float64 `env:"MIN_HOURS_FOR_STREAK" envDefault:"6"`
	RawSessionRetentionDays int     `env:"RAW_SESSION_RETENTION_DAYS" envDefault:"30"`
	FirstSessionPolicy      string  `env:"FIRST_SESSION_POLICY" envDefault:"lenient"`
	MaxSessionHours         float64 `env:"MAX_SESSION_HOURS" envDefault:"12"`
}

// StatsConfig holds statistics engine settings.
type StatsConfig struct {
	WindowDays           int     `env:"WINDOW_DAYS" envDefault:"30"`
	RecentDays           int     `env:"RECENT_DAYS" envDefault:"7"`
	IdealSampleSize      int     `env:"IDEAL_SAMPLE_SIZE" envDefault:"14"`
	BusyThresholdMinutes float64 `env:"BUSY_THRESHOLD_MINUTES" envDefault:"30"`
	// OpenDay picks the calendar day the open daily counter is charted on:
	// "today" or "last_study_day".
	OpenDay string `env:"OPEN_DAY" envDefault:"today"`
}

// RankingConfig holds ranking engine settings.
type RankingConfig struct {
	Mode       string  `env:"MODE" envDefault:"linear"`
	Alpha      float64 `env:"ALPHA" envDefault:"0.5"`
	Beta       float64 `env:"BETA" envDefault:"0.3"`
	Gamma      float64 `env:"GAMMA" envDefault:"0.2"`
	Delta      float64 `env:"DELTA" envDefault:"0.1"`
	TopK       int     `env:"TOP_K" envDefault:"10"`
	StreakCap  int     `env:"STREAK_CAP" envDefault:"7"`
	Smoothing  float64 `env:"SMOOTHING" envDefault:"0.5"` // multiplicative mode constant
	WindowDays int     `env:"WINDOW_DAYS" envDefault:"30"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled                 bool          `env:"ENABLED" envDefault:"true"`
	RebuildLeaderboardEvery time.Duration `env:"REBUILD_LEADERBOARD_EVERY" envDefault:"5m"`
	CloseStaleSessionsEvery time.Duration `env:"CLOSE_STALE_SESSIONS_EVERY" envDefault:"10m"`
	JobTimeout              time.Duration `env:"JOB_TIMEOUT" envDefault:"2m"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads .env (if present), the optional TOML file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	environ := env.ToMap(os.Environ())
	return LoadFrom(environ[FileEnvVar], environ)
}

// LoadFrom builds a Config from an explicit TOML path and environment map.
// An empty path or a missing file contributes nothing.
func LoadFrom(path string, environ map[string]string) (*Config, error) {
	merged, err := fileEnvironment(path)
	if err != nil {
		return nil, err
	}
	for k, v := range environ {
		merged[k] = v
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: merged}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileEnvironment flattens a TOML document into environment keys:
// [tracker] min_hours_for_streak = 5 becomes TRACKER_MIN_HOURS_FOR_STREAK=5.
func fileEnvironment(path string) (map[string]string, error) {
	out := make(map[string]string)
	if path == "" {
		return out, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	var doc map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, doc map[string]any, out map[string]string) {
	for k, v := range doc {
		key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		case time.Time:
			out[key] = val.Format(time.RFC3339)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate checks if the configuration is valid and reports every problem.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "STORAGE_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, "STORAGE_DATABASE_URL is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER %q is not one of memory, sqlite, postgres", c.Storage.Driver))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, "REDIS_URL is required when REDIS_ENABLED is set")
	}

	if _, err := timeutil.LoadCalendar(c.Tracker.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("TRACKER_TIMEZONE: %v", err))
	}
	if err := c.Tracker.LedgerConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Tracker.MaxSessionHours <= 0 || c.Tracker.MaxSessionHours > 24 {
		errs = append(errs, "TRACKER_MAX_SESSION_HOURS must be in (0, 24]")
	}

	if c.Stats.WindowDays <= 0 || c.Stats.RecentDays <= 0 {
		errs = append(errs, "STATS_WINDOW_DAYS and STATS_RECENT_DAYS must be positive")
	}
	if c.Stats.IdealSampleSize <= 0 {
		errs = append(errs, "STATS_IDEAL_SAMPLE_SIZE must be positive")
	}
	if !stats.OpenDayPolicy(c.Stats.OpenDay).IsValid() {
		errs = append(errs, fmt.Sprintf("STATS_OPEN_DAY %q is not one of today, last_study_day", c.Stats.OpenDay))
	}

	if _, err := c.Ranking.ScorerConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// LogFormat resolves the handler format: JSON in production, text otherwise.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	if c.IsProduction() {
		return "json"
	}
	return "text"
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN CONVERSIONS
// ══════════════════════════════════════════════════════════════════════════════

// Calendar returns the calendar for the configured timezone.
func (t TrackerConfig) Calendar() (timeutil.Calendar, error) {
	return timeutil.LoadCalendar(t.Timezone)
}

// LedgerConfig converts to the ledger's configuration.
func (t TrackerConfig) LedgerConfig() study.LedgerConfig {
	return study.LedgerConfig{
		MinHoursForStreak:       t.MinHoursForStreak,
		RawSessionRetentionDays: t.RawSessionRetentionDays,
		FirstSessionPolicy:      study.FirstSessionPolicy(t.FirstSessionPolicy),
	}
}

// MaxSession returns the longest session the tracker accepts.
func (t TrackerConfig) MaxSession() time.Duration {
	return time.Duration(timeutil.HoursToMs(t.MaxSessionHours)) * time.Millisecond
}

// EngineConfig converts to the statistics engine configuration.
// The daily target is shared with the ledger.
func (c *Config) EngineConfig() stats.Config {
	cfg := stats.DefaultConfig()
	cfg.TargetHours = c.Tracker.MinHoursForStreak
	cfg.WindowDays = c.Stats.WindowDays
	cfg.RecentDays = c.Stats.RecentDays
	cfg.IdealSampleSize = c.Stats.IdealSampleSize
	cfg.BusyThresholdMinutes = c.Stats.BusyThresholdMinutes
	cfg.OpenDay = stats.OpenDayPolicy(c.Stats.OpenDay)
	return cfg
}

// ScorerConfig converts to the ranking engine configuration.
func (r RankingConfig) ScorerConfig() (leaderboard.Config, error) {
	mode, err := leaderboard.ParseMode(r.Mode)
	if err != nil {
		return leaderboard.Config{}, fmt.Errorf("RANKING_MODE: %w", err)
	}
	cfg := leaderboard.Config{
		Mode: mode,
		Weights: leaderboard.Weights{
			Alpha: r.Alpha,
			Beta:  r.Beta,
			Gamma: r.Gamma,
			Delta: r.Delta,
		},
		TopK:       r.TopK,
		StreakCap:  r.StreakCap,
		Gamma:      r.Smoothing,
		WindowDays: r.WindowDays,
	}
	if err := cfg.Validate(); err != nil {
		return leaderboard.Config{}, fmt.Errorf("ranking: %w", err)
	}
	return cfg, nil
}
