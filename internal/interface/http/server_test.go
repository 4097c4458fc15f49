package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/internal/application/command"
	"github.com/studyhub/studyhub/internal/application/query"
	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/stats"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/internal/infrastructure/persistence/memory"
	"github.com/studyhub/studyhub/internal/interface/http/handlers"
	"github.com/studyhub/studyhub/pkg/logger"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *memory.RecordRepository, *handlers.HealthChecker) {
	t.Helper()
	cal := timeutil.NewCalendar(time.UTC)
	clock := timeutil.FixedClock{T: now}
	repo := memory.NewRecordRepository()
	engine := stats.NewEngine(stats.DefaultConfig(), cal)

	deps := command.Deps{
		Records:  repo,
		Ledger:   study.NewLedger(study.DefaultLedgerConfig(), cal),
		Sessions: memory.NewSessionTracker(),
		Clock:    clock,
		Logger:   logger.Discard(),
	}
	lb, err := query.NewLeaderboardHandler(query.LeaderboardDeps{
		Records: repo,
		Engine:  engine,
		Config:  leaderboard.DefaultConfig(),
		Clock:   clock,
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)

	health := handlers.NewHealthChecker("test")
	srv := NewServer(Config{RateLimitPerMinute: 0}, Dependencies{
		RecordSession: command.NewRecordSessionHandler(deps),
		TransferTime:  command.NewTransferTimeHandler(deps),
		Sessions:      command.NewSessionHandler(deps, 12*time.Hour),
		UserStats:     query.NewUserStatsHandler(repo, engine, clock),
		Leaderboard:   lb,
		Health:        health,
		Logger:        logger.Discard(),
	})
	return srv.Handler(), repo, health
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var resp JSONResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func TestServer_RecordSession(t *testing.T) {
	h, repo, _ := newTestServer(t)

	rec, resp := do(t, h, http.MethodPost, "/v1/sessions", map[string]any{"user_id": "u1", "duration_ms": 3_600_000})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))

	stored, err := repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3_600_000), stored.TotalTime)

	rec, resp = do(t, h, http.MethodPost, "/v1/sessions", map[string]any{"user_id": "u1", "duration_ms": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", resp.Error.Code)

	rec, resp = do(t, h, http.MethodPost, "/v1/sessions", `{"user_id":"u1","duration_ms":9223372036854775807}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", resp.Error.Code)
	stored, err = repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3_600_000), stored.TotalTime)

	rec, resp = do(t, h, http.MethodPost, "/v1/sessions", `{"user_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", resp.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/sessions", map[string]any{"user_id": "u1", "duration_ms": 1, "extra": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_TransferErrors(t *testing.T) {
	h, _, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/v1/sessions", map[string]any{"user_id": "a", "duration_ms": 3_600_000})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"ok", map[string]any{"sender_id": "a", "receiver_id": "b", "hours": 0.5}, http.StatusOK, ""},
		{"insufficient", map[string]any{"sender_id": "a", "receiver_id": "b", "hours": 5}, http.StatusConflict, "insufficient_balance"},
		{"self", map[string]any{"sender_id": "a", "receiver_id": "a", "hours": 1}, http.StatusUnprocessableEntity, "invalid_target"},
		{"zero", map[string]any{"sender_id": "a", "receiver_id": "b", "hours": 0}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, h, http.MethodPost, "/v1/transfers", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.code, resp.Error.Code)
			}
		})
	}
}

func TestServer_SessionStartStop(t *testing.T) {
	h, _, _ := newTestServer(t)
	start := now.Add(-30 * time.Minute)

	rec, _ := do(t, h, http.MethodPost, "/v1/sessions/start", map[string]any{"user_id": "u1", "at": start})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, resp := do(t, h, http.MethodPost, "/v1/sessions/start", map[string]any{"user_id": "u1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_active", resp.Error.Code)

	rec, resp = do(t, h, http.MethodPost, "/v1/sessions/stop", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(30*60_000), data["duration_ms"])

	rec, _ = do(t, h, http.MethodPost, "/v1/sessions/stop", map[string]any{"user_id": "u1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Queries(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec, resp := do(t, h, http.MethodGet, "/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]any)["no_data"])

	do(t, h, http.MethodPost, "/v1/sessions", map[string]any{"user_id": "u1", "duration_ms": 7_200_000})
	do(t, h, http.MethodPost, "/v1/sessions", map[string]any{"user_id": "u2", "duration_ms": 3_600_000})

	rec, resp = do(t, h, http.MethodGet, "/v1/leaderboard?limit=1&mode=multiplicative", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["no_data"])
	assert.Len(t, data["entries"], 1)

	rec, _ = do(t, h, http.MethodGet, "/v1/leaderboard?mode=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/leaderboard?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/v1/users/u1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, resp.Data.(map[string]any)["total_hours"])

	rec, resp = do(t, h, http.MethodGet, "/v1/users/u1/series?days=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data.(map[string]any)["points"], 30)

	rec, _ = do(t, h, http.MethodGet, "/v1/users/u1/series?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/users/u1/intervals", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/v1/users/u2/rank", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]any)["rank"])
}

func TestServer_Health(t *testing.T) {
	h, _, health := newTestServer(t)

	rec, _ := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	health.AddCheck("database", func(context.Context) error { return errors.New("connection refused") })
	rec, _ = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	srv := NewServer(Config{RateLimitPerMinute: 2}, Dependencies{Logger: logger.Discard()})
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, resp := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", resp.Error.Code)
}
