package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector records every published event in order.
type collector struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (c *collector) Publish(_ context.Context, evt domain.StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *collector) types() []domain.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func (c *collector) byType(t domain.EventType) []domain.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.StatusEvent
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// stubSource is a scripted liquidity source.
type stubSource struct {
	name        string
	amountOut   decimal.Decimal
	quoteErr    error
	buildErr    error
	submitErrs  []error // consumed one per attempt; nil entry means success
	submitCalls int
	txHash      string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Quote(_ context.Context, tokenIn, tokenOut string, amount decimal.Decimal) (domain.Quote, error) {
	if s.quoteErr != nil {
		return domain.Quote{}, s.quoteErr
	}
	return domain.Quote{
		Dex:       s.name,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amount,
		AmountOut: s.amountOut,
	}, nil
}

func (s *stubSource) BuildSwap(_ context.Context, orderID string, q domain.Quote, _ decimal.Decimal) (domain.SwapTx, error) {
	if s.buildErr != nil {
		return domain.SwapTx{}, s.buildErr
	}
	return domain.SwapTx{Dex: s.name, OrderID: orderID, QuotedAt: q}, nil
}

func (s *stubSource) Submit(_ context.Context, _ domain.SwapTx) (string, error) {
	call := s.submitCalls
	s.submitCalls++
	if call < len(s.submitErrs) && s.submitErrs[call] != nil {
		return "", s.submitErrs[call]
	}
	if s.txHash == "" {
		return s.name + "-TX", nil
	}
	return s.txHash, nil
}

// memStore is an in-memory OrderStore.
type memStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]domain.Order)}
}

func (s *memStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memStore) UpdateTerminal(_ context.Context, id string, upd domain.TerminalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = upd.Status
	o.TxHash = upd.TxHash
	o.LastError = upd.LastError
	o.Attempts = upd.Attempts
	s.orders[id] = o
	return nil
}

func (s *memStore) ListRecent(_ context.Context, _ int) ([]domain.Order, error) {
	return nil, nil
}

func testJob() domain.Job {
	return domain.Job{
		ID:          "job-1",
		OrderID:     "order-1",
		TokenIn:     "SOL",
		TokenOut:    "USDC",
		Amount:      decimal.NewFromInt(10),
		SlippageBps: decimal.NewFromInt(50),
	}
}

func newExecutor(sources []domain.LiquiditySource, store domain.OrderStore, sink *collector, cfg Config) *Executor {
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	return New(sources, store, sink, cfg, testLogger())
}

func TestExecuteSuccessSequence(t *testing.T) {
	raydium := &stubSource{name: "raydium", amountOut: decimal.RequireFromString("9.9")}
	meteora := &stubSource{name: "meteora", amountOut: decimal.RequireFromString("10.1")}
	sink := &collector{}
	store := newMemStore()

	e := newExecutor([]domain.LiquiditySource{raydium, meteora}, store, sink, Config{MaxAttempts: 3})
	require.NoError(t, e.Execute(context.Background(), testJob()))

	assert.Equal(t, []domain.EventType{
		domain.EventRouting,
		domain.EventRouting,
		domain.EventBuilding,
		domain.EventBuilding,
		domain.EventSubmitted,
		domain.EventConfirmed,
	}, sink.types())

	progress := []int{}
	for _, evt := range sink.events {
		require.NotNil(t, evt.Progress)
		progress = append(progress, *evt.Progress)
	}
	assert.Equal(t, []int{10, 30, 50, 70, 80, 100}, progress)

	confirmed := sink.byType(domain.EventConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "meteora", confirmed[0].Dex, "best effective output wins")
	assert.NotEmpty(t, confirmed[0].TxHash)
	assert.Equal(t, 1, confirmed[0].Attempt)

	stored, err := store.GetByID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, 1, stored.Attempts)
}

func TestRoutingTieBreaksBySourcePriority(t *testing.T) {
	first := &stubSource{name: "raydium", amountOut: decimal.NewFromInt(10)}
	second := &stubSource{name: "meteora", amountOut: decimal.NewFromInt(10)}
	sink := &collector{}

	e := newExecutor([]domain.LiquiditySource{first, second}, nil, sink, Config{})
	require.NoError(t, e.Execute(context.Background(), testJob()))

	confirmed := sink.byType(domain.EventConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "raydium", confirmed[0].Dex)
}

func TestTransientFailureThenRetrySucceeds(t *testing.T) {
	src := &stubSource{
		name:       "raydium",
		amountOut:  decimal.NewFromInt(10),
		submitErrs: []error{domain.NewTransientError(errors.New("Transient DEX execution error")), nil},
	}
	sink := &collector{}
	store := newMemStore()

	e := newExecutor([]domain.LiquiditySource{src}, store, sink, Config{MaxAttempts: 3})
	require.NoError(t, e.Execute(context.Background(), testJob()))

	assert.Equal(t, []domain.EventType{
		domain.EventRouting,
		domain.EventRouting,
		domain.EventBuilding,
		domain.EventBuilding,
		domain.EventSubmitted,
		domain.EventExecutionFailed,
		domain.EventRetryPending,
		domain.EventSubmitted,
		domain.EventConfirmed,
	}, sink.types())

	failedEvts := sink.byType(domain.EventExecutionFailed)
	require.Len(t, failedEvts, 1)
	assert.Equal(t, 1, failedEvts[0].Attempt)
	require.NotNil(t, failedEvts[0].RetriesRemaining)
	assert.Equal(t, 2, *failedEvts[0].RetriesRemaining)
	require.NotNil(t, failedEvts[0].Transient)
	assert.True(t, *failedEvts[0].Transient)

	pending := sink.byType(domain.EventRetryPending)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].NextAttempt)
	assert.Positive(t, pending[0].DelayMs)

	confirmed := sink.byType(domain.EventConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, 2, confirmed[0].Attempt)

	stored, _ := store.GetByID(context.Background(), "order-1")
	assert.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
}

func TestExhaustedRetriesEndInFailed(t *testing.T) {
	transient := domain.NewTransientError(errors.New("node congestion"))
	src := &stubSource{
		name:       "raydium",
		amountOut:  decimal.NewFromInt(10),
		submitErrs: []error{transient, transient},
	}
	sink := &collector{}
	store := newMemStore()

	e := newExecutor([]domain.LiquiditySource{src}, store, sink, Config{MaxAttempts: 2})
	err := e.Execute(context.Background(), testJob())
	require.Error(t, err)

	types := sink.types()
	assert.Equal(t, domain.EventFailed, types[len(types)-1], "final attempt emits failed, not execution-failed last")
	assert.Len(t, sink.byType(domain.EventExecutionFailed), 2)
	assert.Len(t, sink.byType(domain.EventRetryPending), 1)
	assert.Len(t, sink.byType(domain.EventFailed), 1)
	assert.Equal(t, 2, src.submitCalls, "never attempts past the budget")

	stored, _ := store.GetByID(context.Background(), "order-1")
	assert.Equal(t, domain.OrderStatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, 2, stored.Attempts)
}

func TestRejectionIsNotRetried(t *testing.T) {
	src := &stubSource{
		name:       "raydium",
		amountOut:  decimal.NewFromInt(10),
		submitErrs: []error{domain.NewRejectedError(errors.New("slippage exceeded"))},
	}
	sink := &collector{}

	e := newExecutor([]domain.LiquiditySource{src}, nil, sink, Config{MaxAttempts: 3})
	require.Error(t, e.Execute(context.Background(), testJob()))

	assert.Equal(t, 1, src.submitCalls)
	assert.Empty(t, sink.byType(domain.EventRetryPending))

	failedEvts := sink.byType(domain.EventExecutionFailed)
	require.Len(t, failedEvts, 1)
	require.NotNil(t, failedEvts[0].Transient)
	assert.False(t, *failedEvts[0].Transient)
	assert.Len(t, sink.byType(domain.EventFailed), 1)
}

func TestNoUsableQuotesFailsTerminally(t *testing.T) {
	a := &stubSource{name: "raydium", quoteErr: errors.New("venue down")}
	b := &stubSource{name: "meteora", amountOut: decimal.Zero}
	sink := &collector{}

	e := newExecutor([]domain.LiquiditySource{a, b}, nil, sink, Config{})
	err := e.Execute(context.Background(), testJob())
	require.ErrorIs(t, err, domain.ErrNoQuotes)

	assert.Empty(t, sink.byType(domain.EventSubmitted))
	assert.Len(t, sink.byType(domain.EventFailed), 1)
}

func TestBuildFailureIsTerminal(t *testing.T) {
	src := &stubSource{
		name:      "raydium",
		amountOut: decimal.NewFromInt(10),
		buildErr:  domain.NewRejectedError(errors.New("simulation failed")),
	}
	sink := &collector{}

	e := newExecutor([]domain.LiquiditySource{src}, nil, sink, Config{})
	require.Error(t, e.Execute(context.Background(), testJob()))

	assert.Empty(t, sink.byType(domain.EventSubmitted), "no retry across sources after a build failure")
	assert.Len(t, sink.byType(domain.EventFailed), 1)
	assert.Equal(t, 0, src.submitCalls)
}

func TestHardTimeoutCancelsBackoff(t *testing.T) {
	transient := domain.NewTransientError(errors.New("timeout"))
	src := &stubSource{
		name:       "raydium",
		amountOut:  decimal.NewFromInt(10),
		submitErrs: []error{transient, transient, transient},
	}
	sink := &collector{}

	e := newExecutor([]domain.LiquiditySource{src}, nil, sink, Config{
		MaxAttempts: 3,
		BackoffBase: 5 * time.Second,
		HardTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	err := e.Execute(context.Background(), testJob())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "backoff sleep must observe cancellation promptly")

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventFailed, types[len(types)-1])
}

func TestAlreadyTerminalOrderIsSkipped(t *testing.T) {
	store := newMemStore()
	tx := "TX-1"
	require.NoError(t, store.Create(context.Background(), domain.Order{
		ID:     "order-1",
		Status: domain.OrderStatusConfirmed,
		TxHash: &tx,
	}))

	src := &stubSource{name: "raydium", amountOut: decimal.NewFromInt(10)}
	sink := &collector{}

	e := newExecutor([]domain.LiquiditySource{src}, store, sink, Config{})
	require.NoError(t, e.Execute(context.Background(), testJob()))
	assert.Empty(t, sink.types(), "terminal orders are immutable")
}
