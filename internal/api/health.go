package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Health reports liveness and whether the store answers a ping.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}

// NotFound answers unknown routes with a JSON 404.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "not found")
}
