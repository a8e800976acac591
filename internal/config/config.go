// Package config defines the service configuration, its defaults, and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Queue    QueueConfig    `toml:"queue"`
	Executor ExecutorConfig `toml:"executor"`
	Dex      DexConfig      `toml:"dex"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When Enabled is false the
// service runs single-instance: in-memory queue, in-process event delivery,
// no cross-instance locks.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// QueueConfig tunes the order job queue and worker pool.
type QueueConfig struct {
	Key         string   `toml:"key"`
	BufferSize  int      `toml:"buffer_size"`
	Concurrency int      `toml:"concurrency"`
	LockTTL     duration `toml:"lock_ttl"`
}

// ExecutorConfig tunes retry and timeout behavior of order execution.
type ExecutorConfig struct {
	MaxAttempts   int      `toml:"max_attempts"`
	BackoffBase   duration `toml:"backoff_base"`
	QuoteTimeout  duration `toml:"quote_timeout"`
	SubmitTimeout duration `toml:"submit_timeout"`
	HardTimeout   duration `toml:"hard_timeout"`
}

// DexConfig selects and tunes the liquidity sources. Sources are listed in
// priority order; earlier sources win quote ties.
type DexConfig struct {
	Sources          []string `toml:"sources"`
	MinQuoteLatency  duration `toml:"min_quote_latency"`
	MaxQuoteLatency  duration `toml:"max_quote_latency"`
	BuildLatency     duration `toml:"build_latency"`
	MinSubmitLatency duration `toml:"min_submit_latency"`
	MaxSubmitLatency duration `toml:"max_submit_latency"`
	FailRate         float64  `toml:"fail_rate"`
	Seed             int64    `toml:"seed"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swapstream",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		Queue: QueueConfig{
			Key:         "queue:orders",
			BufferSize:  256,
			Concurrency: 10,
			LockTTL:     duration{5 * time.Minute},
		},
		Executor: ExecutorConfig{
			MaxAttempts:   3,
			BackoffBase:   duration{500 * time.Millisecond},
			QuoteTimeout:  duration{5 * time.Second},
			SubmitTimeout: duration{10 * time.Second},
			HardTimeout:   duration{2 * time.Minute},
		},
		Dex: DexConfig{
			Sources:          []string{"raydium", "meteora"},
			MinQuoteLatency:  duration{100 * time.Millisecond},
			MaxQuoteLatency:  duration{400 * time.Millisecond},
			BuildLatency:     duration{500 * time.Millisecond},
			MinSubmitLatency: duration{2 * time.Second},
			MaxSubmitLatency: duration{3 * time.Second},
			FailRate:         0.08,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
		if c.Postgres.User == "" {
			errs = append(errs, "postgres: user must not be empty")
		}
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when redis is enabled")
	}
	mode := strings.ToLower(c.Mode)
	if !c.Redis.Enabled && (mode == "server" || mode == "worker") {
		errs = append(errs, fmt.Sprintf("redis: must be enabled for mode %q (split modes need a shared queue and event bus)", c.Mode))
	}

	// Queue
	if c.Queue.Concurrency <= 0 {
		errs = append(errs, "queue: concurrency must be positive")
	}
	if c.Redis.Enabled && c.Queue.Key == "" {
		errs = append(errs, "queue: key must not be empty when redis is enabled")
	}

	// Executor
	if c.Executor.MaxAttempts <= 0 {
		errs = append(errs, "executor: max_attempts must be positive")
	}
	if c.Executor.BackoffBase.Duration <= 0 {
		errs = append(errs, "executor: backoff_base must be positive")
	}
	if c.Executor.HardTimeout.Duration > 0 && c.Queue.LockTTL.Duration > 0 &&
		c.Queue.LockTTL.Duration < c.Executor.HardTimeout.Duration {
		errs = append(errs, "queue: lock_ttl must not be shorter than executor.hard_timeout")
	}

	// Dex
	if len(c.Dex.Sources) == 0 {
		errs = append(errs, "dex: at least one source must be configured")
	}
	if c.Dex.FailRate < 0 || c.Dex.FailRate > 1 {
		errs = append(errs, fmt.Sprintf("dex: fail_rate %v out of range [0, 1]", c.Dex.FailRate))
	}
	if c.Dex.MinQuoteLatency.Duration > c.Dex.MaxQuoteLatency.Duration {
		errs = append(errs, "dex: min_quote_latency must not exceed max_quote_latency")
	}
	if c.Dex.MinSubmitLatency.Duration > c.Dex.MaxSubmitLatency.Duration {
		errs = append(errs, "dex: min_submit_latency must not exceed max_submit_latency")
	}

	// Server
	if (mode == "server" || mode == "full") && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
