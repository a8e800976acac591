package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "worker"
log_level = "debug"

[executor]
max_attempts = 5
backoff_base = "250ms"

[dex]
sources = ["meteora", "raydium"]

[queue]
concurrency = 4
lock_ttl = "10m"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "worker", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Executor.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Executor.BackoffBase.Duration)
	assert.Equal(t, []string{"meteora", "raydium"}, cfg.Dex.Sources)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Queue.LockTTL.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("SWAPSTREAM_MODE", "server")
	t.Setenv("SWAPSTREAM_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("SWAPSTREAM_EXECUTOR_BACKOFF_BASE", "2s")
	t.Setenv("SWAPSTREAM_DEX_SOURCES", "raydium, meteora ,orca")
	t.Setenv("SWAPSTREAM_REDIS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 2*time.Second, cfg.Executor.BackoffBase.Duration)
	assert.Equal(t, []string{"raydium", "meteora", "orca"}, cfg.Dex.Sources)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.LogLevel = "loud"
	cfg.Executor.MaxAttempts = 0
	cfg.Dex.Sources = nil
	cfg.Dex.FailRate = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "at least one source")
	assert.Contains(t, err.Error(), "fail_rate")
}

func TestValidateSplitModesRequireRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "worker"
	cfg.Redis.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: must be enabled")

	cfg.Mode = "full"
	require.NoError(t, cfg.Validate())
}

func TestValidateLockTTLCoversHardTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Queue.LockTTL = duration{30 * time.Second}
	cfg.Executor.HardTimeout = duration{2 * time.Minute}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_ttl")
}
