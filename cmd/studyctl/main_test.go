package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/studyhub/config"
	"github.com/studyhub/studyhub/internal/bootstrap"
	"github.com/studyhub/studyhub/pkg/logger"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.LoadFrom("", map[string]string{
		"STORAGE_DRIVER":   "memory",
		"TRACKER_TIMEZONE": "UTC",
	})
	require.NoError(t, err)

	clock := timeutil.FixedClock{T: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)}
	store, err := bootstrap.OpenStore(context.Background(), cfg, timeutil.NewCalendar(time.UTC), clock, logger.Discard())
	require.NoError(t, err)

	return &app{cfg: cfg, log: logger.Discard(), clock: clock, store: store}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestStudyctl_RecordRankTransfer(t *testing.T) {
	a := newTestApp(t)

	got, err := execute(t, a, "record", "alice", "2h")
	require.NoError(t, err)
	assert.Contains(t, got, "alice: today 2h 0s, total 2h 0s")

	_, err = execute(t, a, "record", "bob", "1h")
	require.NoError(t, err)

	got, err = execute(t, a, "rank")
	require.NoError(t, err)
	assert.Contains(t, got, "2 eligible")
	assert.Regexp(t, `1\. alice`, got)

	got, err = execute(t, a, "rank", "bob")
	require.NoError(t, err)
	assert.Contains(t, got, "bob is 2nd of 2")

	got, err = execute(t, a, "transfer", "alice", "bob", "0.5")
	require.NoError(t, err)
	assert.Contains(t, got, "moved 30m 0s from alice to bob")

	got, err = execute(t, a, "stats", "alice", "--days", "0")
	require.NoError(t, err)
	assert.Contains(t, got, "total:       1.50h")
	assert.Contains(t, got, "today:       2.00h")
}

func TestStudyctl_Errors(t *testing.T) {
	a := newTestApp(t)

	_, err := execute(t, a, "record", "alice", "soon")
	assert.Error(t, err)

	_, err = execute(t, a, "transfer", "alice", "alice", "1")
	assert.Error(t, err)

	got, err := execute(t, a, "rank")
	require.NoError(t, err)
	assert.Contains(t, got, "no ranked users yet")

	got, err = execute(t, a, "rank", "ghost")
	require.NoError(t, err)
	assert.Contains(t, got, "ghost is not ranked")
}

func TestStudyctl_ImportExport(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()

	legacy := filepath.Join(dir, "database.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"users":{"carol":{
		"totalTime": 7200000,
		"dailyTime": 0,
		"currentStreak": 1,
		"lastStudyDate": 1717977600000,
		"history": [3600000, 3600000]
	}}}`), 0o600))

	got, err := execute(t, a, "import", legacy)
	require.NoError(t, err)
	assert.Contains(t, got, "imported 1 users")

	exported := filepath.Join(dir, "out.json")
	got, err = execute(t, a, "export", exported)
	require.NoError(t, err)
	assert.Contains(t, got, "exported 1 users")

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"carol"`)

	got, err = execute(t, a, "migrate")
	require.NoError(t, err)
	assert.Contains(t, got, "memory store is up to date")

	got, err = execute(t, a, "migrate", "--status")
	require.NoError(t, err)
	assert.Contains(t, got, "memory store has no versioned migrations")
}
