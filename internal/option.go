package internal

import (
	"io"

	"github.com/starford/kiln/internal/ingest"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	embedder ingest.Embedder
	version  string
	out      io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithEmbedder sets the collaborator that turns changed blocks into vectors.
// Without one, ingestion stores no embeddings.
func WithEmbedder(e ingest.Embedder) Option {
	return func(a *application) {
		a.embedder = e
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOutput sets where one-shot commands print results. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
