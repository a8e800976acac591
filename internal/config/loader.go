package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWAPSTREAM_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load. An empty path skips
// the file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWAPSTREAM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SWAPSTREAM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SWAPSTREAM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWAPSTREAM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWAPSTREAM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWAPSTREAM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWAPSTREAM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWAPSTREAM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWAPSTREAM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWAPSTREAM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SWAPSTREAM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SWAPSTREAM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SWAPSTREAM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPSTREAM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPSTREAM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPSTREAM_REDIS_POOL_SIZE")

	// ── Queue ──
	setStr(&cfg.Queue.Key, "SWAPSTREAM_QUEUE_KEY")
	setInt(&cfg.Queue.BufferSize, "SWAPSTREAM_QUEUE_BUFFER_SIZE")
	setInt(&cfg.Queue.Concurrency, "SWAPSTREAM_QUEUE_CONCURRENCY")
	setDuration(&cfg.Queue.LockTTL, "SWAPSTREAM_QUEUE_LOCK_TTL")

	// ── Executor ──
	setInt(&cfg.Executor.MaxAttempts, "SWAPSTREAM_EXECUTOR_MAX_ATTEMPTS")
	setDuration(&cfg.Executor.BackoffBase, "SWAPSTREAM_EXECUTOR_BACKOFF_BASE")
	setDuration(&cfg.Executor.QuoteTimeout, "SWAPSTREAM_EXECUTOR_QUOTE_TIMEOUT")
	setDuration(&cfg.Executor.SubmitTimeout, "SWAPSTREAM_EXECUTOR_SUBMIT_TIMEOUT")
	setDuration(&cfg.Executor.HardTimeout, "SWAPSTREAM_EXECUTOR_HARD_TIMEOUT")

	// ── Dex ──
	setStringSlice(&cfg.Dex.Sources, "SWAPSTREAM_DEX_SOURCES")
	setFloat64(&cfg.Dex.FailRate, "SWAPSTREAM_DEX_FAIL_RATE")
	setInt64(&cfg.Dex.Seed, "SWAPSTREAM_DEX_SEED")

	// ── Server ──
	setStr(&cfg.Server.Addr, "SWAPSTREAM_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPSTREAM_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWAPSTREAM_MODE")
	setStr(&cfg.LogLevel, "SWAPSTREAM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
