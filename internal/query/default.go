package query

import (
	"fmt"

	"github.com/starford/kiln/internal/metrics"
	"github.com/starford/kiln/internal/query/render"
	"github.com/starford/kiln/internal/query/syntax"
	"github.com/starford/kiln/internal/query/transform"
)

// Default assembles the shipped pipeline for a storage backend: "sqlite"
// renders SQL, "memory" and "graph" render Cypher executed from the plan.
// extra passes run after Normalize and Validate.
func Default(backend string, m *metrics.Metrics, extra ...transform.Pass) (*Pipeline, error) {
	var renderers []render.Renderer
	switch backend {
	case "sqlite":
		renderers = []render.Renderer{render.NewSQLite()}
	case "memory", render.BackendGraph:
		renderers = []render.Renderer{render.NewCypher()}
	default:
		return nil, fmt.Errorf("query: unknown backend %q", backend)
	}
	return NewBuilder().
		WithRegistry(syntax.Default()).
		WithTransforms(transform.Default().With(extra...)).
		WithRenderers(renderers...).
		WithMetrics(m).
		Build()
}
