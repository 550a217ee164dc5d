package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/eav/memstore"
	"github.com/starford/kiln/internal/eav/sqlitestore"
	"github.com/starford/kiln/internal/ingest"
	"github.com/starford/kiln/internal/metrics"
	"github.com/starford/kiln/internal/noteservice"
	"github.com/starford/kiln/internal/query"
	"github.com/starford/kiln/internal/storage"
)

// core is the wiring shared by every command: vault, store, ingestion and
// the query pipeline.
type core struct {
	vault    *storage.FS
	store    eav.Store
	ingestor *ingest.Ingestor
	pipeline *query.Pipeline
	service  *noteservice.Service
	metrics  *metrics.Metrics
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger and installs it as the default. Logs go to
// stderr so stdout stays free for command output and MCP stdio.
func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openStore(cfg *Config, logger *slog.Logger) (eav.Store, error) {
	switch cfg.Storage.Backend {
	case BackendMemory:
		return memstore.New(), nil
	case BackendSQLite, "":
		s, err := sqlitestore.Open(cfg.Storage.SQLite.Path, sqlitestore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func openCore(app *application, logger *slog.Logger, onEvent ingest.EventFunc) (*core, error) {
	cfg := app.config

	// Ensure kiln directory exists.
	if err := os.MkdirAll(cfg.Kiln.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create kiln dir: %w", err)
	}
	vault, err := storage.NewFS(cfg.Kiln.Path, storage.WithIgnore(cfg.Kiln.Ignore...))
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	pipeline, err := query.Default(store.Backend(), m)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init query pipeline: %w", err)
	}

	ingOpts := []ingest.Option{
		ingest.WithDiffMode(cfg.Changes.Mode()),
		ingest.WithMetrics(m),
		ingest.WithLogger(logger),
	}
	if app.embedder != nil {
		ingOpts = append(ingOpts, ingest.WithEmbedder(app.embedder))
	}
	if onEvent != nil {
		ingOpts = append(ingOpts, ingest.WithEventFunc(onEvent))
	}
	ing := ingest.New(store, ingOpts...)

	return &core{
		vault:    vault,
		store:    store,
		ingestor: ing,
		pipeline: pipeline,
		service:  noteservice.NewService(vault, ing, pipeline),
		metrics:  m,
	}, nil
}

func (c *core) sync(ctx context.Context, logger *slog.Logger) (ingest.SyncStats, error) {
	return ingest.Sync(ctx, c.ingestor, c.vault, ingest.DefaultWorkers, logger)
}

func (c *core) Close() error {
	return c.store.Close()
}
