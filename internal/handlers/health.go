package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	startTime time.Time
	version   string
	db        HealthChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, db HealthChecker) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		version:   version,
		db:        db,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "whatsapp-checker",
		Version:   h.version,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).String(),
	})
}

// Ready handles GET /ready (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	status := http.StatusOK
	state := "ready"

	if err := h.db.Health(r.Context()); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}

// Live handles GET /live (liveness probe).
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "alive"})
}
