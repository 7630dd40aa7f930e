package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chomoku/kyoto-hexmap/internal/core/config"
	"github.com/chomoku/kyoto-hexmap/internal/core/health"
	middleware "github.com/chomoku/kyoto-hexmap/internal/core/middleware"
	"github.com/chomoku/kyoto-hexmap/internal/core/router"
)

type Routes struct {
	API     router.API
	Ready   health.ReadinessReporter
	Metrics http.Handler
}

// NewHandler builds the chi tree served by Run.
func NewHandler(cfg config.Config, logger *slog.Logger, routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger, cfg.Variant))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if routes.Ready != nil {
		r.Get("/readyz", health.Readiness(routes.Ready))
	}
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}
	r.Route("/api", routes.API.Mount)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, routes Routes) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, routes),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr, "variant", cfg.Variant)
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
