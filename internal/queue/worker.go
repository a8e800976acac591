package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// JobRunner executes one dequeued job to a terminal state.
type JobRunner interface {
	Execute(ctx context.Context, job domain.Job) error
}

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	Concurrency int
	// LockTTL bounds how long the per-order execution lock is held. It
	// should exceed the executor's hard timeout.
	LockTTL time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	return c
}

// Pool consumes jobs from the queue with a fixed number of workers. Orders
// execute in parallel across workers, but never more than one worker per
// order: the queue delivers each job once, and the optional lock manager
// guards against redelivery races across instances.
type Pool struct {
	queue  domain.JobQueue
	runner JobRunner
	locks  domain.LockManager // nil disables cross-instance locking
	cfg    PoolConfig
	logger *slog.Logger
}

// NewPool creates a worker pool.
func NewPool(q domain.JobQueue, runner JobRunner, locks domain.LockManager, cfg PoolConfig, logger *slog.Logger) *Pool {
	return &Pool{
		queue:  q,
		runner: runner,
		locks:  locks,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "worker_pool")),
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker pool starting",
		slog.Int("concurrency", p.cfg.Concurrency),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			return p.workerLoop(ctx, worker)
		})
	}
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, worker int) error {
	log := p.logger.With(slog.Int("worker", worker))
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
				return ctx.Err()
			}
			log.ErrorContext(ctx, "dequeue failed", slog.String("error", err.Error()))
			continue
		}

		p.runJob(ctx, job, log)
	}
}

// runJob executes one job, holding the per-order lock when a lock manager
// is configured. Execution errors are already terminal (event emitted,
// status persisted) so they are only logged here.
func (p *Pool) runJob(ctx context.Context, job domain.Job, log *slog.Logger) {
	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, domain.OrderChannel(job.OrderID), p.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.WarnContext(ctx, "order already being executed, dropping duplicate job",
					slog.String("order_id", job.OrderID),
				)
				return
			}
			log.ErrorContext(ctx, "failed to acquire order lock",
				slog.String("order_id", job.OrderID),
				slog.String("error", err.Error()),
			)
			return
		}
		defer unlock()
	}

	if err := p.runner.Execute(ctx, job); err != nil {
		log.WarnContext(ctx, "job finished in failed state",
			slog.String("order_id", job.OrderID),
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	log.InfoContext(ctx, "job completed",
		slog.String("order_id", job.OrderID),
		slog.String("job_id", job.ID),
	)
}
