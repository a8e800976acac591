package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/swapstream/internal/broker"
	"github.com/alanyoungcy/swapstream/internal/cache/redis"
	"github.com/alanyoungcy/swapstream/internal/config"
	"github.com/alanyoungcy/swapstream/internal/dex"
	"github.com/alanyoungcy/swapstream/internal/domain"
	"github.com/alanyoungcy/swapstream/internal/executor"
	"github.com/alanyoungcy/swapstream/internal/queue"
	"github.com/alanyoungcy/swapstream/internal/registry"
	"github.com/alanyoungcy/swapstream/internal/server"
	"github.com/alanyoungcy/swapstream/internal/server/ws"
	"github.com/alanyoungcy/swapstream/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	OrderStore domain.OrderStore
	Queue      domain.JobQueue
	Bus        domain.EventBus    // nil when Redis is disabled
	Locks      domain.LockManager // nil when Redis is disabled

	Registry *registry.Registry
	Broker   *broker.Broker
	Gateway  *ws.Gateway

	Executor *executor.Executor
	Pool     *queue.Pool
	Server   *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.OrderStore = postgres.NewOrderStore(pgClient)

	// --- Redis (event bus, locks, job queue) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewEventBus(redisClient, logger)
		deps.Locks = redis.NewLockManager(redisClient, logger)
		deps.Queue = queue.NewRedis(redisClient.Underlying(), cfg.Queue.Key)
	} else {
		memQueue := queue.NewMemory(cfg.Queue.BufferSize)
		closers = append(closers, memQueue.Close)
		deps.Queue = memQueue
	}

	// --- Event fanout ---
	deps.Registry = registry.New(logger)
	deps.Broker = broker.New(deps.Registry, deps.Bus, logger)
	deps.Gateway = ws.NewGateway(deps.Registry, logger)

	// --- Execution ---
	sources := dex.FromNames(cfg.Dex.Sources, dex.MockConfig{
		MinQuoteLatency:  cfg.Dex.MinQuoteLatency.Duration,
		MaxQuoteLatency:  cfg.Dex.MaxQuoteLatency.Duration,
		BuildLatency:     cfg.Dex.BuildLatency.Duration,
		MinSubmitLatency: cfg.Dex.MinSubmitLatency.Duration,
		MaxSubmitLatency: cfg.Dex.MaxSubmitLatency.Duration,
		FailRate:         cfg.Dex.FailRate,
		Seed:             cfg.Dex.Seed,
	})
	deps.Executor = executor.New(sources, deps.OrderStore, deps.Broker, executor.Config{
		MaxAttempts:   cfg.Executor.MaxAttempts,
		BackoffBase:   cfg.Executor.BackoffBase.Duration,
		QuoteTimeout:  cfg.Executor.QuoteTimeout.Duration,
		SubmitTimeout: cfg.Executor.SubmitTimeout.Duration,
		HardTimeout:   cfg.Executor.HardTimeout.Duration,
	}, logger)

	deps.Pool = queue.NewPool(deps.Queue, deps.Executor, deps.Locks, queue.PoolConfig{
		Concurrency: cfg.Queue.Concurrency,
		LockTTL:     cfg.Queue.LockTTL.Duration,
	}, logger)

	// --- HTTP server ---
	deps.Server = server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, deps.OrderStore, deps.Queue, deps.Gateway, logger)

	return deps, cleanup, nil
}
