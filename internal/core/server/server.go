package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/config"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/health"
	middleware "github.com/mohammed-shakir/hazard-aggregator/internal/core/middleware"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/router"
)

// Deps are the collaborators behind the HTTP routes. Nil optional fields
// leave their routes unregistered.
type Deps struct {
	Lookups   router.Lookups
	Responder router.Responder
	Digester  router.Digester
	Locator   router.Locator
	Ready     map[string]health.Pinger
	// Metrics defaults to the process-wide Prometheus registry.
	Metrics http.Handler
}

// Routes builds the chi router with middleware and every endpoint.
func Routes(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(cfg.CacheOpTimeout*4, d.Ready))
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Get("/api/disasters", router.HandleDisasters(logger, d.Lookups))
	r.Get("/api/pois", router.HandlePOIs(logger, d.Lookups))
	if d.Responder != nil {
		chat := router.HandleChat(d.Responder)
		r.Post("/chat", chat)
		r.Post("/handle_message", chat)
	}
	if d.Digester != nil {
		r.Post("/latest_updates", router.HandleLatestUpdates(d.Digester))
	}
	if d.Locator != nil {
		r.Get("/api/location", router.HandleLocation(d.Locator))
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Routes(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
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
