package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const checkTimeout = 3 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthChecker struct {
	log    *slog.Logger
	checks map[string]Pinger
}

// NewHealthChecker builds a /healthz handler. Each entry of checks is reported under its name.
func NewHealthChecker(log *slog.Logger, checks map[string]Pinger) *HealthChecker {
	return &HealthChecker{
		log:    log,
		checks: checks,
	}
}

func (h *HealthChecker) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	h.log.DebugContext(req.Context(), "Performing health checks...")

	status := make(map[string]string, len(h.checks))
	overallStatus := http.StatusOK

	for name, pinger := range h.checks {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		err := pinger.Ping(ctx)
		cancel()

		if err != nil {
			status[name] = "unavailable"
			overallStatus = http.StatusServiceUnavailable
			h.log.WarnContext(req.Context(), "Health check failed", "dependency", name, "error", err)
			continue
		}
		status[name] = "ok"
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(overallStatus)
	if err := json.NewEncoder(writer).Encode(status); err != nil {
		h.log.ErrorContext(req.Context(), "Failed to write health check response", "error", err)
	}

	h.log.DebugContext(req.Context(), "Health checks completed", "status", overallStatus)
}
