package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Contains(t, cfg.QueryTemplate, "${key}")
	assert.Equal(t, "assessments-by-catchment.json", cfg.FetchOutput)
	assert.Equal(t, "assessments_by_catchment.sql", cfg.SeedOutput)
	assert.True(t, cfg.RequireExisting)
	assert.Equal(t, "escape", cfg.QuoteMode)
	assert.Zero(t, cfg.Timeout)
	assert.Empty(t, cfg.HistoryDB)
	require.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seedpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://localhost:9000/query
seed_output: out/seed.sql
require_existing: false
quote_mode: postgres
timeout: 30s
rate_limit: 2.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/query", cfg.BaseURL)
	assert.Equal(t, "out/seed.sql", cfg.SeedOutput)
	assert.Equal(t, DefaultFetchOutput, cfg.FetchOutput)
	assert.Equal(t, DefaultQueryTemplate, cfg.QueryTemplate)
	assert.False(t, cfg.RequireExisting)
	assert.Equal(t, "postgres", cfg.QuoteMode)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.InDelta(t, 2.5, cfg.RateLimit, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: [1, 2"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SEEDPIPE_BASE_URL", "http://env.test/q")
	t.Setenv("SEEDPIPE_QUOTE_MODE", "raw")
	t.Setenv("SEEDPIPE_REQUIRE_EXISTING", "false")
	t.Setenv("SEEDPIPE_TIMEOUT", "5s")
	t.Setenv("SEEDPIPE_RATE_LIMIT", "4")
	t.Setenv("SEEDPIPE_HISTORY_DB", "/tmp/runs.db")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "http://env.test/q", cfg.BaseURL)
	assert.Equal(t, "raw", cfg.QuoteMode)
	assert.False(t, cfg.RequireExisting)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.InDelta(t, 4.0, cfg.RateLimit, 1e-9)
	assert.Equal(t, "/tmp/runs.db", cfg.HistoryDB)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for _, env := range []string{"SEEDPIPE_REQUIRE_EXISTING", "SEEDPIPE_TIMEOUT", "SEEDPIPE_RATE_LIMIT"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "not-a-value")
			err := Default().ApplyEnv()
			assert.ErrorContains(t, err, env)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = ""
	cfg.QueryTemplate = "where=1"
	cfg.QuoteMode = "mysql"
	cfg.RateLimit = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "base_url is required")
	assert.ErrorContains(t, err, "${key}")
	assert.ErrorContains(t, err, "mysql")
	assert.ErrorContains(t, err, "rate_limit")
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
