package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/RobertDiep/dify-slackbot/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store store.Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(s store.Pinger) *HealthHandler {
	return &HealthHandler{
		store: s,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "config store not configured",
		})
		return
	}
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "config store unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
