package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/kiln/internal"
	pkgconfig "github.com/starford/kiln/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunIngest(ctx, opts...)
}

func query(ctx context.Context, cmd *cli.Command) error {
	text := cmd.Args().First()
	if text == "" {
		return fmt.Errorf("query text is required")
	}
	var params map[string]any
	if raw := cmd.String("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunQuery(ctx, text, params, cmd.Bool("explain"), opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "kiln",
		Usage:   "Markdown knowledge graph with content-addressed blocks and multi-syntax queries",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE events and the kiln watcher",
				Action: serve,
			},
			{
				Name:   "ingest",
				Usage:  "Sync the kiln directory into the store once",
				Action: ingest,
			},
			{
				Name:      "query",
				Usage:     "Run a PGQ, SQL-sugar or jq-style query",
				ArgsUsage: "TEXT",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print the rendered backend query instead of running it",
					},
					&cli.StringFlag{
						Name:  "params",
						Usage: `JSON object of $parameters, e.g. '{"src":"Index"}'`,
					},
				},
				Action: query,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
