package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the order lifecycle. Transitions are monotonic except
// that submitting may be re-entered across retry attempts; confirmed and
// failed are terminal.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusRouting    OrderStatus = "routing"
	OrderStatusBuilding   OrderStatus = "building"
	OrderStatusSubmitting OrderStatus = "submitting"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusFailed     OrderStatus = "failed"
)

// IsTerminal reports whether no further status transitions occur.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed
}

// Order represents a swap order. It is owned by the single worker executing
// its job for the duration of the run; only terminal transitions are
// persisted after creation.
type Order struct {
	ID          string
	TokenIn     string
	TokenOut    string
	Amount      decimal.Decimal
	SlippageBps decimal.Decimal
	Status      OrderStatus
	TxHash      *string
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TerminalUpdate carries the fields persisted when an order reaches a
// terminal status.
type TerminalUpdate struct {
	Status    OrderStatus
	TxHash    *string
	LastError *string
	Attempts  int
}
