package handlers

import (
	"context"
	"log"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports 503 when the durable store is unreachable. An
// unreachable cache only degrades the response.
type HealthHandler struct {
	store Pinger
	cache Pinger
}

func NewHealthHandler(store, cache Pinger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache}
}

func (h *HealthHandler) CheckHandler(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	cacheStatus := "ok"
	if err := h.cache.Ping(ctx); err != nil {
		log.Printf("health check cache degraded err=%v", err)
		cacheStatus = "degraded"
	}

	if err := h.store.Ping(ctx); err != nil {
		log.Printf("health check store unavailable err=%v", err)
		return writeJSON(w, http.StatusServiceUnavailable, JSONResponse{"status": "unavailable", "cache": cacheStatus})
	}

	return writeJSON(w, http.StatusOK, JSONResponse{"status": "ok", "cache": cacheStatus})
}
