package domain

import "context"

// OrderStore persists order records. Intermediate progress is deliberately
// not persisted: Create runs once at intake and UpdateTerminal once when the
// order reaches confirmed or failed.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	UpdateTerminal(ctx context.Context, id string, upd TerminalUpdate) error
	ListRecent(ctx context.Context, limit int) ([]Order, error)
}
