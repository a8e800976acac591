// Package dex provides liquidity source implementations. The mock sources
// reproduce realistic venue behaviour (latency, price variation, fees, and
// transient submission failures) for development and testing without
// touching a real chain.
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// MockConfig tunes the simulated venue behaviour. Zero values mean "no
// latency, no failures", which is what tests want.
type MockConfig struct {
	MinQuoteLatency  time.Duration
	MaxQuoteLatency  time.Duration
	BuildLatency     time.Duration
	MinSubmitLatency time.Duration
	MaxSubmitLatency time.Duration
	// FailRate is the probability in [0,1] that a submission fails with a
	// transient error.
	FailRate float64
	// Seed fixes the random sequence; 0 seeds from the clock.
	Seed int64
}

// DefaultMockConfig mirrors the timing profile of the original mock router:
// quotes answer in 100-400ms, submissions take 2-3s and fail transiently 8%
// of the time.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		MinQuoteLatency:  100 * time.Millisecond,
		MaxQuoteLatency:  400 * time.Millisecond,
		BuildLatency:     500 * time.Millisecond,
		MinSubmitLatency: 2 * time.Second,
		MaxSubmitLatency: 3 * time.Second,
		FailRate:         0.08,
	}
}

// MockSource simulates one DEX venue. Safe for concurrent use.
type MockSource struct {
	name string
	// bias skews the simulated price per venue so routing has something to
	// choose between.
	bias float64
	cfg  MockConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// venueBias gives each known venue a slight, stable price skew.
var venueBias = map[string]float64{
	"raydium": -0.002,
	"meteora": 0.002,
}

// NewMockSource creates a simulated venue with the given name.
func NewMockSource(name string, cfg MockConfig) *MockSource {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockSource{
		name: name,
		bias: venueBias[name],
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// FromNames builds the configured source set in priority order.
func FromNames(names []string, cfg MockConfig) []domain.LiquiditySource {
	sources := make([]domain.LiquiditySource, 0, len(names))
	for _, n := range names {
		sources = append(sources, NewMockSource(n, cfg))
	}
	return sources
}

// Name returns the venue name.
func (m *MockSource) Name() string { return m.name }

// Quote simulates a priced offer: base price 1.0 with 2-5% venue-signed
// variation plus the per-venue bias, and a 0.2-0.4% fee.
func (m *MockSource) Quote(ctx context.Context, tokenIn, tokenOut string, amount decimal.Decimal) (domain.Quote, error) {
	if err := m.sleep(ctx, m.cfg.MinQuoteLatency, m.cfg.MaxQuoteLatency); err != nil {
		return domain.Quote{}, err
	}

	m.mu.Lock()
	variation := 0.02 + m.rng.Float64()*0.03
	fee := 0.002 + m.rng.Float64()*0.002
	m.mu.Unlock()

	direction := 1.0
	if m.bias < 0 {
		direction = -1.0
	}
	price := 1.0 + direction*variation + m.bias

	amountOut := amount.
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(1 - fee))

	return domain.Quote{
		Dex:        m.name,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   amount,
		AmountOut:  amountOut,
		FeePercent: decimal.NewFromFloat(fee * 100),
	}, nil
}

// BuildSwap simulates transaction construction against a quote.
func (m *MockSource) BuildSwap(ctx context.Context, orderID string, q domain.Quote, slippageBps decimal.Decimal) (domain.SwapTx, error) {
	if err := m.sleep(ctx, m.cfg.BuildLatency, m.cfg.BuildLatency); err != nil {
		return domain.SwapTx{}, err
	}
	payload := fmt.Sprintf("%s:%s->%s:%s@slippage=%sbps",
		m.name, q.TokenIn, q.TokenOut, q.AmountIn.String(), slippageBps.String())
	return domain.SwapTx{
		Dex:      m.name,
		OrderID:  orderID,
		Payload:  []byte(payload),
		QuotedAt: q,
	}, nil
}

// Submit simulates sending the transaction and waiting for confirmation.
// With probability FailRate it fails transiently; otherwise it returns a
// fake transaction hash.
func (m *MockSource) Submit(ctx context.Context, tx domain.SwapTx) (string, error) {
	if err := m.sleep(ctx, m.cfg.MinSubmitLatency, m.cfg.MaxSubmitLatency); err != nil {
		return "", err
	}

	m.mu.Lock()
	roll := m.rng.Float64()
	nonce := m.rng.Intn(1_000_000)
	m.mu.Unlock()

	if roll < m.cfg.FailRate {
		return "", domain.NewTransientError(errors.New("Transient DEX execution error"))
	}

	return fmt.Sprintf("%s-%d-%d", strings.ToUpper(m.name), time.Now().UnixMilli(), nonce), nil
}

// sleep pauses for a random duration in [min,max], honouring cancellation.
func (m *MockSource) sleep(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		m.mu.Lock()
		d = min + time.Duration(m.rng.Int63n(int64(max-min)+1))
		m.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Compile-time interface check.
var _ domain.LiquiditySource = (*MockSource)(nil)
