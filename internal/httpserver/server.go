// Package httpserver exposes the core's only inbound HTTP surface: health
// and metrics endpoints for the worker process. Job submission, contact
// retrieval, and authentication live in the ingestion layer outside this
// module's scope (spec Non-goals); this server exists purely for
// operability.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a dependency the process relies on is
// reachable. Implementations should be cheap and side-effect free.
type HealthChecker func(ctx context.Context) error

// Server is the health/metrics HTTP surface.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a Server listening on addr, serving metricsPath from registry
// and /healthz and /readyz by invoking every checker (in no fixed order).
func New(addr, metricsPath string, registry *prometheus.Registry, logger *slog.Logger, checkers map[string]HealthChecker) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", healthzHandler(checkers))
	r.Get("/readyz", healthzHandler(checkers))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func healthzHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failures := map[string]string{}
		for name, check := range checkers {
			if err := check(ctx); err != nil {
				failures[name] = err.Error()
			}
		}

		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health/metrics server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
