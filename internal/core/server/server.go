// Package server runs the resolver HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geo-resolver/internal/core/health"
	middleware "github.com/mohammed-shakir/geo-resolver/internal/core/middleware"
	"github.com/mohammed-shakir/geo-resolver/internal/core/router"
)

type Options struct {
	Addr string
	// CORSOrigins defaults to any origin when empty.
	CORSOrigins []string
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	Ready       map[string]health.Pinger
}

// Handler builds the routed handler; exposed for tests.
func Handler(logger *slog.Logger, api *router.API, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Ready))
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}
	api.Mount(r)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, logger *slog.Logger, api *router.API, opts Options) error {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           Handler(logger, api, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// region queries can take minutes upstream
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", opts.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
