// Package health provides the service health endpoint.
package health

import (
	"context"
	"net/http"
	"time"

	apierrors "github.com/powerflow/licensing/internal/api/errors"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler answers health checks against the backing store.
type Handler struct {
	store Pinger
}

// NewHandler creates a new health handler.
func NewHandler(store Pinger) *Handler {
	return &Handler{store: store}
}

// Check handles GET /health.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		apierrors.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
