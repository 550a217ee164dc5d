// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/starford/kiln/internal/api"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/ingest"
	"github.com/starford/kiln/internal/sse"
)

// Run starts the HTTP server, the initial sync and the kiln watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("kiln_path", cfg.Kiln.Path),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("sqlite_path", cfg.Storage.SQLite.Path),
		slog.String("diff_mode", cfg.Changes.DiffMode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker receives every committed ingestion.
	broker := sse.NewBroker(sse.WithLogger(logger))
	defer broker.Close()

	c, err := openCore(app, logger, broker.PublishNoteEvent)
	if err != nil {
		return err
	}
	defer c.Close()

	// Run initial sync.
	if _, err := c.sync(ctx, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	var limiter *rate.Limiter
	if cfg.Query.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Query.RateLimit), cfg.Query.Burst)
	}
	apiRouter := api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, limiter)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.store.CountEntities(req.Context(), eav.EntityFilter{Type: eav.EntityNote}); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{}))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; it feeds the broker through the ingestor.
	g.Go(func() error {
		if err := ingest.Watch(gCtx, c.ingestor, c.vault, c.vault.Root(), logger); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
