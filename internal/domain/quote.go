package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quote is a priced offer from one liquidity source to exchange tokenIn for
// tokenOut.
type Quote struct {
	Dex        string
	TokenIn    string
	TokenOut   string
	AmountIn   decimal.Decimal
	AmountOut  decimal.Decimal
	FeePercent decimal.Decimal
}

// EffectiveOut returns the output amount after fees; the routing phase picks
// the quote with the largest effective output.
func (q Quote) EffectiveOut() decimal.Decimal {
	return q.AmountOut
}

// SwapTx is an opaque, venue-specific transaction ready for submission.
type SwapTx struct {
	Dex      string
	OrderID  string
	Payload  []byte
	QuotedAt Quote
}

// LiquiditySource is the capability boundary to one DEX venue. All methods
// honour context cancellation; failures surface as *ExecError where the
// venue can classify them.
type LiquiditySource interface {
	Name() string
	Quote(ctx context.Context, tokenIn, tokenOut string, amount decimal.Decimal) (Quote, error)
	BuildSwap(ctx context.Context, orderID string, q Quote, slippageBps decimal.Decimal) (SwapTx, error)
	Submit(ctx context.Context, tx SwapTx) (txHash string, err error)
}
