package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and, when pingers are set, store reachability
type HealthHandler struct {
	stores map[string]Pinger
}

// NewHealthHandler creates a health handler over the named stores
func NewHealthHandler(stores map[string]Pinger) *HealthHandler {
	return &HealthHandler{stores: stores}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.stores))
	for name, p := range h.stores {
		if err := p.PingContext(ctx); err != nil {
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	respondWithJSON(w, status, map[string]any{
		"ok":     status == http.StatusOK,
		"checks": checks,
	})
}
