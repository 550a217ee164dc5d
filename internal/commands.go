package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/starford/kiln/internal/mcpserver"
)

// RunIngest syncs the kiln directory into the store once and prints the stats.
func RunIngest(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	c, err := openCore(app, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	stats, err := c.sync(ctx, logger)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "indexed %d, unchanged %d, removed %d, failed %d\n",
		stats.Indexed, stats.Unchanged, stats.Removed, stats.Failed)
	return err
}

// RunQuery runs or explains one query and writes the result as JSON.
// A memory backend starts empty, so the kiln is synced first.
func RunQuery(ctx context.Context, text string, params map[string]any, explain bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	c, err := openCore(app, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")

	if explain {
		q, err := c.service.Explain(text)
		if err != nil {
			return err
		}
		return enc.Encode(q)
	}

	if app.config.Storage.Backend == BackendMemory {
		if _, err := c.sync(ctx, logger); err != nil {
			return err
		}
	}
	res, err := c.service.Query(ctx, text, params)
	if err != nil {
		return err
	}
	return enc.Encode(res.Rows)
}

// RunMCP serves the MCP tools on stdin/stdout after an initial sync.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config)

	c, err := openCore(app, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.sync(ctx, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.service, app.version).ServeStdio()
}
