// Package executor drives one swap order through its execution phases:
// routing (quote aggregation), building (transaction construction), and
// submitting (with transient-failure retries). Every transition is emitted
// as a status event; no failure escapes as an unhandled fault — the order
// always reaches a terminal, persisted state before the job is released.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// EventPublisher is the broker boundary the executor emits status events
// through.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.StatusEvent) error
}

// Config holds the execution timing and retry parameters.
type Config struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	QuoteTimeout  time.Duration
	SubmitTimeout time.Duration
	// HardTimeout bounds one whole order run; when it elapses the order
	// fails with a timeout error instead of hanging.
	HardTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = 5 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 10 * time.Second
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 2 * time.Minute
	}
	return c
}

// Executor runs the execution state machine for orders. One Executor is
// shared by all workers; each Execute call owns its order exclusively for
// the duration of the run.
type Executor struct {
	sources []domain.LiquiditySource
	orders  domain.OrderStore // nil disables persistence
	events  EventPublisher
	retry   *RetryPolicy
	cfg     Config
	logger  *slog.Logger
}

// New creates an Executor. The order of sources is the routing tie-break
// priority.
func New(sources []domain.LiquiditySource, orders domain.OrderStore, events EventPublisher, cfg Config, logger *slog.Logger) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		sources: sources,
		orders:  orders,
		events:  events,
		retry:   NewRetryPolicy(cfg.BackoffBase),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Execute drives one order from pending to a terminal state. It returns the
// terminal error for logging purposes; by the time it returns, the failed
// or confirmed event has been emitted and the terminal status persisted.
func (e *Executor) Execute(ctx context.Context, job domain.Job) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.HardTimeout)
	defer cancel()

	log := e.logger.With(
		slog.String("order_id", job.OrderID),
		slog.String("job_id", job.ID),
	)
	log.InfoContext(ctx, "processing order")

	order, err := e.loadOrCreate(ctx, job)
	if err != nil {
		return e.fail(ctx, job.OrderID, 0, fmt.Errorf("load order: %w", err))
	}
	if order.Status.IsTerminal() {
		log.WarnContext(ctx, "order already terminal, skipping",
			slog.String("status", string(order.Status)),
		)
		return nil
	}

	// --- routing ---
	order.Status = domain.OrderStatusRouting
	e.publish(ctx, domain.NewRoutingEvent(job.OrderID, 10, "Fetching quotes from multiple DEXs..."))

	best, quoteCount, err := e.route(ctx, job)
	if err != nil {
		return e.fail(ctx, job.OrderID, 0, err)
	}
	e.publish(ctx, domain.NewRoutingEvent(job.OrderID, 30, fmt.Sprintf("Received %d quotes", quoteCount)))

	source := e.sourceByName(best.Dex)
	if source == nil {
		return e.fail(ctx, job.OrderID, 0, fmt.Errorf("no source registered for %s", best.Dex))
	}
	log.InfoContext(ctx, "best quote selected",
		slog.String("dex", best.Dex),
		slog.String("amount_out", best.AmountOut.String()),
	)

	// --- building ---
	order.Status = domain.OrderStatusBuilding
	e.publish(ctx, domain.NewBuildingEvent(job.OrderID, 50, best.Dex,
		fmt.Sprintf("Building transaction on %s...", best.Dex)))

	tx, err := source.BuildSwap(ctx, job.OrderID, best, job.SlippageBps)
	if err != nil {
		// Build/simulation failures are terminal for the chosen source;
		// there is no retry across sources in this version.
		return e.fail(ctx, job.OrderID, 0, fmt.Errorf("build swap on %s: %w", best.Dex, err))
	}
	e.publish(ctx, domain.NewBuildingEvent(job.OrderID, 70, best.Dex, "Transaction built, ready to submit"))

	// --- submitting ---
	order.Status = domain.OrderStatusSubmitting
	return e.submit(ctx, job, source, tx, log)
}

// route fans quote requests out to every configured source, waits for the
// full set or the quote timeout, and selects the quote with the best
// effective output. Ties break toward the earlier source in configured
// priority order.
func (e *Executor) route(ctx context.Context, job domain.Job) (domain.Quote, int, error) {
	qctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	quotes := make([]*domain.Quote, len(e.sources))
	g, gctx := errgroup.WithContext(qctx)
	for i, src := range e.sources {
		g.Go(func() error {
			q, err := src.Quote(gctx, job.TokenIn, job.TokenOut, job.Amount)
			if err != nil {
				e.logger.WarnContext(gctx, "quote fetch failed",
					slog.String("order_id", job.OrderID),
					slog.String("dex", src.Name()),
					slog.String("error", err.Error()),
				)
				return nil // a failed source is skipped, not fatal
			}
			quotes[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.Quote{}, 0, err
	}

	var best *domain.Quote
	count := 0
	for _, q := range quotes {
		if q == nil || !q.AmountOut.IsPositive() {
			continue
		}
		count++
		if best == nil || q.EffectiveOut().GreaterThan(best.EffectiveOut()) {
			best = q
		}
	}
	if best == nil {
		return domain.Quote{}, 0, domain.ErrNoQuotes
	}
	return *best, count, nil
}

// submit runs the bounded attempt loop, consulting the retry policy after
// each failure. The backoff sleep is the only intentional blocking point in
// the pipeline and is cancellable.
func (e *Executor) submit(ctx context.Context, job domain.Job, source domain.LiquiditySource, tx domain.SwapTx, log *slog.Logger) error {
	maxAttempts := e.cfg.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.publish(ctx, domain.NewSubmittedEvent(job.OrderID, attempt, maxAttempts))

		sctx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
		txHash, err := source.Submit(sctx, tx)
		cancel()

		if err == nil {
			return e.confirm(ctx, job, source.Name(), txHash, attempt, log)
		}

		kind := domain.Classify(err)
		log.WarnContext(ctx, "execution attempt failed",
			slog.Int("attempt", attempt),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		e.publish(ctx, domain.NewExecutionFailedEvent(
			job.OrderID, attempt, maxAttempts, kind.Retryable(), err.Error(),
		))

		decision := e.retry.Decide(attempt, maxAttempts, kind)
		if !decision.Retry {
			return e.fail(ctx, job.OrderID, attempt, err)
		}

		e.publish(ctx, domain.NewRetryPendingEvent(job.OrderID, decision.Delay, attempt+1))
		if err := sleepCtx(ctx, decision.Delay); err != nil {
			return e.fail(ctx, job.OrderID, attempt, fmt.Errorf("execution timed out during backoff: %w", err))
		}
	}

	// Unreachable while Decide enforces attempt < maxAttempts; kept as the
	// worker's last-resort guarantee of a terminal state.
	return e.fail(ctx, job.OrderID, maxAttempts, errors.New("max retry attempts exceeded"))
}

func (e *Executor) confirm(ctx context.Context, job domain.Job, dex, txHash string, attempt int, log *slog.Logger) error {
	tctx := context.WithoutCancel(ctx)
	if e.orders != nil {
		err := e.orders.UpdateTerminal(tctx, job.OrderID, domain.TerminalUpdate{
			Status:   domain.OrderStatusConfirmed,
			TxHash:   &txHash,
			Attempts: attempt,
		})
		if err != nil {
			log.ErrorContext(ctx, "failed to persist confirmed status",
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(tctx, domain.NewConfirmedEvent(job.OrderID, dex, txHash, attempt))
	log.InfoContext(ctx, "order confirmed",
		slog.String("tx_hash", txHash),
		slog.Int("attempt", attempt),
	)
	return nil
}

// fail moves the order to its failed terminal state: persist first, then
// emit the failed event. It uses a detached context so that a hard-timeout
// cancellation cannot suppress the terminal event.
func (e *Executor) fail(ctx context.Context, orderID string, attempts int, cause error) error {
	tctx := context.WithoutCancel(ctx)
	msg := cause.Error()
	if e.orders != nil {
		err := e.orders.UpdateTerminal(tctx, orderID, domain.TerminalUpdate{
			Status:    domain.OrderStatusFailed,
			LastError: &msg,
			Attempts:  attempts,
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to persist failed status",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(tctx, domain.NewFailedEvent(orderID, msg, attempts))
	e.logger.ErrorContext(ctx, "order failed permanently",
		slog.String("order_id", orderID),
		slog.String("error", msg),
	)
	return cause
}

func (e *Executor) loadOrCreate(ctx context.Context, job domain.Job) (domain.Order, error) {
	if e.orders == nil {
		return domain.Order{
			ID:          job.OrderID,
			TokenIn:     job.TokenIn,
			TokenOut:    job.TokenOut,
			Amount:      job.Amount,
			SlippageBps: job.SlippageBps,
			Status:      domain.OrderStatusPending,
		}, nil
	}

	order, err := e.orders.GetByID(ctx, job.OrderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, err
	}

	order = domain.Order{
		ID:          job.OrderID,
		TokenIn:     job.TokenIn,
		TokenOut:    job.TokenOut,
		Amount:      job.Amount,
		SlippageBps: job.SlippageBps,
		Status:      domain.OrderStatusPending,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := e.orders.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (e *Executor) sourceByName(name string) domain.LiquiditySource {
	for _, src := range e.sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
}

func (e *Executor) publish(ctx context.Context, evt domain.StatusEvent) {
	if err := e.events.Publish(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "failed to publish status event",
			slog.String("order_id", evt.OrderID),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// sleepCtx suspends for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
