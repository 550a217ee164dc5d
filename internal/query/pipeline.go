// Package query assembles the query pipeline: text is parsed by the
// highest-priority syntax that recognizes it, rewritten by the transform
// chain, and rendered by the first renderer able to express the pattern.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/metrics"
	"github.com/starford/kiln/internal/query/ir"
	"github.com/starford/kiln/internal/query/render"
	"github.com/starford/kiln/internal/query/syntax"
	"github.com/starford/kiln/internal/query/transform"
)

// Executor runs a rendered query against a backend. eav.Store satisfies it.
type Executor interface {
	Execute(ctx context.Context, q *render.RenderedQuery) ([]map[string]any, error)
	Backend() string
}

// Result is an executed query.
type Result struct {
	Query *render.RenderedQuery
	Rows  []map[string]any
}

// Pipeline is immutable once built and safe for concurrent use.
type Pipeline struct {
	registry  *syntax.Registry
	chain     *transform.Chain
	renderers []render.Renderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Builder configures a Pipeline.
type Builder struct {
	registry  *syntax.Registry
	chain     *transform.Chain
	renderers []render.Renderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) WithRegistry(r *syntax.Registry) *Builder {
	b.registry = r
	return b
}

func (b *Builder) WithTransforms(c *transform.Chain) *Builder {
	b.chain = c
	return b
}

// WithRenderers sets renderers in preference order.
func (b *Builder) WithRenderers(rs ...render.Renderer) *Builder {
	b.renderers = append([]render.Renderer(nil), rs...)
	return b
}

func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build returns the pipeline. A missing registry or chain falls back to the
// defaults; at least one renderer is required.
func (b *Builder) Build() (*Pipeline, error) {
	if len(b.renderers) == 0 {
		return nil, errors.New("query: build: no renderers")
	}
	p := &Pipeline{
		registry:  b.registry,
		chain:     b.chain,
		renderers: append([]render.Renderer(nil), b.renderers...),
		metrics:   b.metrics,
		logger:    b.logger,
	}
	if p.registry == nil {
		p.registry = syntax.Default()
	}
	if p.chain == nil {
		p.chain = transform.Default()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Backend reports the backend of the preferred renderer.
func (p *Pipeline) Backend() string { return p.renderers[0].Backend() }

// Syntaxes lists registered syntax names in priority order.
func (p *Pipeline) Syntaxes() []string { return p.registry.Names() }

// Execute translates text into a backend query. It stops at the first failing
// phase and returns a *PipelineError.
func (p *Pipeline) Execute(text string) (*render.RenderedQuery, error) {
	start := time.Now()
	g, err := p.registry.Parse(text)
	p.metrics.ObservePhase(string(PhaseParse), time.Since(start), err != nil)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseParse, Err: err}
	}

	start = time.Now()
	g, err = p.chain.Apply(g)
	p.metrics.ObservePhase(string(PhaseTransform), time.Since(start), err != nil)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseTransform, Err: err}
	}

	start = time.Now()
	q, err := p.render(g)
	p.metrics.ObservePhase(string(PhaseRender), time.Since(start), err != nil)
	if err != nil {
		return nil, &PipelineError{Phase: PhaseRender, Err: err}
	}
	return q, nil
}

func (p *Pipeline) render(g *ir.GraphIR) (*render.RenderedQuery, error) {
	for _, r := range p.renderers {
		if r.Supports(g) {
			return r.Render(g)
		}
	}
	return nil, &render.Error{Kind: render.UnsupportedPattern, Message: "no renderer supports this pattern"}
}

// Run executes text and hands the result to exec with params bound.
func (p *Pipeline) Run(ctx context.Context, text string, exec Executor, params map[string]any) (*Result, error) {
	q, err := p.Execute(text)
	if err != nil {
		return nil, err
	}
	if exec.Backend() != q.Backend {
		return nil, &PipelineError{Phase: PhaseExecute,
			Err: fmt.Errorf("rendered for %s, executor is %s", q.Backend, exec.Backend())}
	}
	if len(params) > 0 || len(q.Unbound()) > 0 {
		q, err = q.Bind(params)
		if err != nil {
			return nil, &PipelineError{Phase: PhaseExecute, Err: apperr.New(apperr.KindInvalid, "query: bind", err)}
		}
	}

	done := p.metrics.Track()
	defer done()
	start := time.Now()
	rows, err := exec.Execute(ctx, q)
	p.metrics.ObservePhase(string(PhaseExecute), time.Since(start), err != nil)
	if err != nil {
		p.logger.Warn("query: execute failed", slog.String("backend", q.Backend), slog.String("error", err.Error()))
		return nil, &PipelineError{Phase: PhaseExecute, Err: err}
	}
	p.logger.Debug("query: executed",
		slog.String("backend", q.Backend),
		slog.Int("rows", len(rows)),
		slog.Duration("took", time.Since(start)))
	return &Result{Query: q, Rows: rows}, nil
}
