package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// NewMonitoringHandler returns the mux with the /healthz and /metrics endpoints.
func NewMonitoringHandler(log *slog.Logger, reg *prometheus.Registry, checks map[string]Pinger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", NewHealthChecker(log, checks))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// StartMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It blocks until ctx is cancelled or the server fails.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - checks: Named dependencies reported by /healthz (database, redis).
// - port: The port number on which the server will listen.
func StartMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	checks map[string]Pinger,
	port int,
) {
	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	Serve(ctx, log, "monitoring", &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewMonitoringHandler(log, reg, checks),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})
}

// Serve runs srv until ctx is cancelled and then shuts it down gracefully.
func Serve(ctx context.Context, log *slog.Logger, name string, srv *http.Server) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.InfoContext(ctx, "Server shutting down", "server", name)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.ErrorContext(ctx, "Server failed to shutdown", "server", name, "error", err)
		}
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Server failed", "server", name, "error", err)
		}
	}
}
