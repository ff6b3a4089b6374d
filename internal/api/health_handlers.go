// Package api provides HTTP API handlers for the GridVeil API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/openvtt/gridveil/internal/middleware"
)

// HealthChecker is implemented by each dependency probe in the health
// package.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers serves the liveness and readiness probes. Checkers are
// optional; a nil checker reads as "not configured" and passes, since the
// API degrades to in-memory repositories without Postgres and to local rate
// limiting without Redis.
type HealthHandlers struct {
	dbChecker      HealthChecker
	redisChecker   HealthChecker
	storageChecker HealthChecker
	metricsEnabled bool
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	DBChecker      HealthChecker
	RedisChecker   HealthChecker
	StorageChecker HealthChecker
	MetricsEnabled bool
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:      config.DBChecker,
		redisChecker:   config.RedisChecker,
		storageChecker: config.StorageChecker,
		metricsEnabled: config.MetricsEnabled,
	}
}

// HealthResponse is the JSON body for both probes.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (h *HealthHandlers) writeProbe(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
	WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
}

// Health handles GET /health, the liveness probe. Being able to answer is
// the whole check.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	h.writeProbe(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready, the readiness probe. It pings every configured
// dependency and answers 503 when any of them is down, pulling the instance
// out of rotation.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	probes := []struct {
		name    string
		checker HealthChecker
	}{
		{"database", h.dbChecker},
		{"redis", h.redisChecker},
		{"storage", h.storageChecker},
	}

	checks := make(map[string]string, len(probes)+1)
	healthy := true
	for _, probe := range probes {
		if probe.checker == nil {
			checks[probe.name] = "ok"
			continue
		}
		if err := probe.checker.HealthCheck(ctx); err != nil {
			checks[probe.name] = "error"
			healthy = false
			slog.WarnContext(ctx, "dependency health check failed", "dependency", probe.name, "error", err)
		} else {
			checks[probe.name] = "ok"
		}
	}

	// The Prometheus registry lives in-process and cannot fail.
	checks["metrics"] = "ok"

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	h.writeProbe(w, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
