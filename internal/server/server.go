// Package server wires the HTTP API: order intake, status queries, and the
// WebSocket status stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/swapstream/internal/domain"
	"github.com/alanyoungcy/swapstream/internal/server/handler"
	"github.com/alanyoungcy/swapstream/internal/server/middleware"
	"github.com/alanyoungcy/swapstream/internal/server/ws"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	http    *http.Server
	store   domain.OrderStore
	orders  *handler.Order
	gateway *ws.Gateway
	logger  *slog.Logger
}

// New builds the server and its route table.
func New(cfg Config, store domain.OrderStore, queue domain.JobQueue, gateway *ws.Gateway, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:     cfg,
		store:   store,
		orders:  handler.NewOrder(store, queue, logger),
		gateway: gateway,
		logger:  logger.With(slog.String("component", "server")),
	}

	health := handler.NewHealth()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", health.Check)
	mux.HandleFunc("POST /api/orders/execute", s.orders.Execute)
	mux.HandleFunc("GET /api/orders", s.orders.List)
	mux.HandleFunc("GET /api/orders/status/{id}", s.handleStatus)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.AllowedOrigins)(h)

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     h,
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout stays zero: the status route holds WebSocket
		// connections open indefinitely.
	}
	return s
}

// handleStatus serves GET /api/orders/status/{id}. Plain requests get the
// persisted order; WebSocket upgrade requests get a live event stream on the
// same path.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		s.orders.Status(w, r)
		return
	}

	id := r.PathValue("id")
	// Reject unknown orders before upgrading so the client gets a proper 404.
	if _, err := s.store.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		s.logger.ErrorContext(r.Context(), "failed to load order before upgrade",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	s.gateway.Handle(w, r, id)
}

// Handler exposes the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the HTTP server until ctx is cancelled, then drains WebSocket
// clients and shuts down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.cfg.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.gateway.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
