package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test
	for _, key := range []string{"DETECTIONS_DB", "HOST", "PORT", "LOG_DIR", "MAX_BODY_BYTES",
		"DEFAULT_QUERY_LIMIT", "STATS_DEFAULT_MINUTES", "SHUTDOWN_TIMEOUT", "METRICS_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///detections.db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, "", cfg.LogDirectory)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 200, cfg.DefaultQueryLimit)
	assert.Equal(t, 5, cfg.StatsDefaultMinutes)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DETECTIONS_DB", "postgres://user:pw@db:5432/detections")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "8088")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("DEFAULT_QUERY_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://user:pw@db:5432/detections", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:8088", cfg.Addr())
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 200, cfg.DefaultQueryLimit, "unparseable values fall back to the default")
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PORT", "")
	require.NoError(t, os.Unsetenv("PORT")) // godotenv never overrides a set variable
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=6001\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6001, cfg.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: 5000, MaxBodyBytes: 1, DefaultQueryLimit: 1, ShutdownTimeout: time.Second}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"body limit", func(c *Config) { c.MaxBodyBytes = 0 }},
		{"query limit", func(c *Config) { c.DefaultQueryLimit = -1 }},
		{"stats minutes", func(c *Config) { c.StatsDefaultMinutes = -5 }},
		{"shutdown", func(c *Config) { c.ShutdownTimeout = 0 }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadReporter(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_URL", "")
	t.Setenv("SOURCE_ID", "gate")
	t.Setenv("REPORT_TIMEOUT", "750ms")

	cfg := LoadReporter()
	assert.Equal(t, "http://127.0.0.1:5000/detections", cfg.BackendURL)
	assert.Equal(t, "gate", cfg.SourceID)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
}
