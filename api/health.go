package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konecto/actuator-agent/internal/catalog/exact"
	"github.com/konecto/actuator-agent/internal/log"
)

// HealthHandler handles health check endpoints for container probes.
type HealthHandler struct {
	pool    *pgxpool.Pool
	catalog *exact.Store
	logger  log.Logger
}

// NewHealthHandler creates a new health handler. The pool backs the
// semantic index and conversation store; catalog is the exact-match
// SQLite store. Both are pinged for readiness.
func NewHealthHandler(pool *pgxpool.Pool, catalog *exact.Store, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, catalog: catalog, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness returns 200 OK only when both catalog stores answer a ping.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "store", "postgres", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	if h.catalog == nil {
		http.Error(w, "catalog not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.catalog.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "store", "catalog", "error", err)
		http.Error(w, "catalog not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
