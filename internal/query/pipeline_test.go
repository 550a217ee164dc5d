package query

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/metrics"
	"github.com/starford/kiln/internal/query/ir"
	"github.com/starford/kiln/internal/query/render"
	"github.com/starford/kiln/internal/query/syntax"
	"github.com/starford/kiln/internal/query/transform"
)

// flagRenderer records whether the render phase was reached.
type flagRenderer struct {
	mu      sync.Mutex
	called  bool
	support bool
}

func (*flagRenderer) Name() string    { return "flag" }
func (*flagRenderer) Backend() string { return "flag" }
func (f *flagRenderer) Supports(*ir.GraphIR) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	return f.support
}
func (f *flagRenderer) Render(g *ir.GraphIR) (*render.RenderedQuery, error) {
	return &render.RenderedQuery{Backend: "flag", Text: g.String(), Plan: g}, nil
}
func (f *flagRenderer) reached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

type fakeExecutor struct {
	backend string
	got     *render.RenderedQuery
	rows    []map[string]any
	err     error
}

func (f *fakeExecutor) Backend() string { return f.backend }
func (f *fakeExecutor) Execute(_ context.Context, q *render.RenderedQuery) ([]map[string]any, error) {
	f.got = q
	return f.rows, f.err
}

func TestExecute_FailFastOnParse(t *testing.T) {
	flag := &flagRenderer{support: true}
	passRan := false
	chain := transform.NewChain(transform.PassFunc{PassName: "probe", Fn: func(g *ir.GraphIR) (*ir.GraphIR, error) {
		passRan = true
		return g, nil
	}})
	p, err := NewBuilder().WithTransforms(chain).WithRenderers(flag).Build()
	require.NoError(t, err)

	_, err = p.Execute("what links to Index?")
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseParse, pe.Phase)

	var parseErr *syntax.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, syntax.NoMatchingSyntax, parseErr.Kind)
	assert.Len(t, parseErr.Tried, 3)

	assert.False(t, passRan)
	assert.False(t, flag.reached())
}

func TestExecute_FailFastOnTransform(t *testing.T) {
	flag := &flagRenderer{support: true}
	p, err := NewBuilder().
		WithTransforms(transform.Default().With(transform.FilterAllowlist("title"))).
		WithRenderers(flag).
		Build()
	require.NoError(t, err)

	_, err = p.Execute(`MATCH (a)-[:wikilink]->(b) WHERE b.secret = 'x' RETURN b`)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseTransform, pe.Phase)

	var te *transform.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, transform.UnsupportedFilter, te.Kind)
	assert.False(t, flag.reached())
}

func TestExecute_NoCapableRenderer(t *testing.T) {
	flag := &flagRenderer{support: false}
	p, err := NewBuilder().WithRenderers(flag).Build()
	require.NoError(t, err)

	_, err = p.Execute(`outlinks("Index")`)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseRender, pe.Phase)
	var re *render.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, render.UnsupportedPattern, re.Kind)
	assert.True(t, flag.reached())
}

func TestExecute_FirstCapableRendererWins(t *testing.T) {
	p, err := NewBuilder().WithRenderers(&flagRenderer{support: false}, render.NewSQLite(), render.NewCypher()).Build()
	require.NoError(t, err)

	q, err := p.Execute(`inlinks("Index")`)
	require.NoError(t, err)
	assert.Equal(t, render.BackendSQLite, q.Backend)
}

func TestExecute_SyntaxesRenderIdentically(t *testing.T) {
	p, err := Default("sqlite", nil)
	require.NoError(t, err)

	queries := []string{
		`outlinks("Index")`,
		`SELECT outlinks FROM 'Index'`,
		`MATCH (a {title:'Index'})-[:wikilink]->(b)`,
	}
	var texts []string
	for _, text := range queries {
		q, err := p.Execute(text)
		require.NoError(t, err, text)
		texts = append(texts, q.Text)
	}
	assert.Equal(t, texts[0], texts[1])
	assert.Equal(t, texts[0], texts[2])
}

func TestExecute_Concurrent(t *testing.T) {
	p, err := Default("memory", metrics.New())
	require.NoError(t, err)

	want, err := p.Execute(`MATCH (a {title:'Index'})-[:wikilink*1..3]->(b) RETURN b.title`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := p.Execute(`MATCH (a {title:'Index'})-[:wikilink*1..3]->(b) RETURN b.title`)
			if err != nil {
				errs <- err
				return
			}
			if q.Text != want.Text {
				errs <- errors.New("rendered text differs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRun(t *testing.T) {
	p, err := Default("sqlite", nil)
	require.NoError(t, err)
	text := `MATCH (a)-[:wikilink]->(b) WHERE a.title = $src RETURN b.title`

	t.Run("binds parameters", func(t *testing.T) {
		exec := &fakeExecutor{backend: render.BackendSQLite, rows: []map[string]any{{"b.title": "Go"}}}
		res, err := p.Run(context.Background(), text, exec, map[string]any{"src": "Index"})
		require.NoError(t, err)
		assert.Equal(t, exec.rows, res.Rows)
		v, ok := exec.got.ParamValue("src")
		require.True(t, ok)
		assert.Equal(t, "Index", v)
	})

	t.Run("unbound parameter", func(t *testing.T) {
		exec := &fakeExecutor{backend: render.BackendSQLite}
		_, err := p.Run(context.Background(), text, exec, nil)
		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseExecute, pe.Phase)
		assert.Nil(t, exec.got)
	})

	t.Run("backend mismatch", func(t *testing.T) {
		exec := &fakeExecutor{backend: render.BackendGraph}
		_, err := p.Run(context.Background(), text, exec, map[string]any{"src": "Index"})
		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PhaseExecute, pe.Phase)
	})

	t.Run("executor failure", func(t *testing.T) {
		boom := errors.New("boom")
		exec := &fakeExecutor{backend: render.BackendSQLite, err: boom}
		_, err := p.Run(context.Background(), text, exec, map[string]any{"src": "Index"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestBuildAndDefault(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)

	_, err = Default("postgres", nil)
	assert.Error(t, err)

	p, err := Default("graph", nil)
	require.NoError(t, err)
	assert.Equal(t, render.BackendGraph, p.Backend())
	assert.Equal(t, []string{"pgq", "sql", "jq"}, p.Syntaxes())
}
