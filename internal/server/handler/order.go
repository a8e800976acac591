package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapstream/internal/domain"
)

// Order accepts swap orders and serves their status.
type Order struct {
	store  domain.OrderStore
	queue  domain.JobQueue
	logger *slog.Logger
}

// NewOrder creates the order handler.
func NewOrder(store domain.OrderStore, queue domain.JobQueue, logger *slog.Logger) *Order {
	return &Order{
		store:  store,
		queue:  queue,
		logger: logger.With(slog.String("component", "order_handler")),
	}
}

// executeRequest is the body of POST /api/orders/execute.
type executeRequest struct {
	TokenIn     string          `json:"tokenIn"`
	TokenOut    string          `json:"tokenOut"`
	Amount      decimal.Decimal `json:"amount"`
	SlippageBps decimal.Decimal `json:"slippageBps"`
}

func (req *executeRequest) validate() error {
	if strings.TrimSpace(req.TokenIn) == "" {
		return fmt.Errorf("%w: tokenIn is required", domain.ErrInvalidOrder)
	}
	if strings.TrimSpace(req.TokenOut) == "" {
		return fmt.Errorf("%w: tokenOut is required", domain.ErrInvalidOrder)
	}
	if strings.EqualFold(strings.TrimSpace(req.TokenIn), strings.TrimSpace(req.TokenOut)) {
		return fmt.Errorf("%w: tokenIn and tokenOut must differ", domain.ErrInvalidOrder)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidOrder)
	}
	if req.SlippageBps.IsNegative() {
		return fmt.Errorf("%w: slippageBps must not be negative", domain.ErrInvalidOrder)
	}
	return nil
}

// executeResponse is the body of a successful POST /api/orders/execute.
type executeResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	JobID   string `json:"jobId,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message"`
	WSURL   string `json:"wsUrl,omitempty"`
}

// Execute handles POST /api/orders/execute. It persists a pending order,
// enqueues an execution job, and tells the caller where to stream status.
func (h *Order) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		TokenIn:     strings.TrimSpace(req.TokenIn),
		TokenOut:    strings.TrimSpace(req.TokenOut),
		Amount:      req.Amount,
		SlippageBps: req.SlippageBps,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.Create(r.Context(), order); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to persist order",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	job := domain.Job{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		TokenIn:     order.TokenIn,
		TokenOut:    order.TokenOut,
		Amount:      order.Amount,
		SlippageBps: order.SlippageBps,
		EnqueuedAt:  now,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enqueue job",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		// The order row exists; the caller can retry or poll its status.
		writeJSON(w, http.StatusServiceUnavailable, executeResponse{
			Success: false,
			OrderID: order.ID,
			Status:  string(domain.OrderStatusPending),
			Message: "Order accepted but execution could not be scheduled",
		})
		return
	}

	h.logger.InfoContext(r.Context(), "order accepted",
		slog.String("order_id", order.ID),
		slog.String("job_id", job.ID),
		slog.String("token_in", order.TokenIn),
		slog.String("token_out", order.TokenOut),
	)

	writeJSON(w, http.StatusCreated, executeResponse{
		Success: true,
		OrderID: order.ID,
		JobID:   job.ID,
		Status:  string(domain.OrderStatusPending),
		Message: "Order received and queued for execution",
		WSURL:   "/api/orders/status/" + order.ID,
	})
}

// orderResponse is the REST view of an order.
type orderResponse struct {
	OrderID     string  `json:"orderId"`
	TokenIn     string  `json:"tokenIn"`
	TokenOut    string  `json:"tokenOut"`
	Amount      string  `json:"amount"`
	SlippageBps string  `json:"slippageBps"`
	Status      string  `json:"status"`
	TxHash      *string `json:"txHash,omitempty"`
	Attempts    int     `json:"attempts"`
	LastError   *string `json:"lastError,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:     o.ID,
		TokenIn:     o.TokenIn,
		TokenOut:    o.TokenOut,
		Amount:      o.Amount.String(),
		SlippageBps: o.SlippageBps.String(),
		Status:      string(o.Status),
		TxHash:      o.TxHash,
		Attempts:    o.Attempts,
		LastError:   o.LastError,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Status handles the REST form of GET /api/orders/status/{id}.
func (h *Order) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load order",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   toOrderResponse(order),
	})
}

// List handles GET /api/orders. Most recent orders first.
func (h *Order) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListRecent(r.Context(), 50)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list orders",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  out,
	})
}
