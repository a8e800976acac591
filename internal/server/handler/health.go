package handler

import (
	"net/http"
	"time"
)

// Health reports service liveness.
type Health struct {
	startedAt time.Time
}

// NewHealth creates a health handler.
func NewHealth() *Health {
	return &Health{startedAt: time.Now().UTC()}
}

// Check handles GET /api/health.
func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
