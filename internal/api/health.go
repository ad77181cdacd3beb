package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterHealth registers the detailed health endpoint. The plain
// /health heartbeat is handled by router middleware.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.HandleHealth)
}

// HandleHealth reports store reachability and whether AI features are
// enabled.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.repo.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, map[string]interface{}{
		"status":     status,
		"ai_enabled": h.aiEnabled,
	})
}
