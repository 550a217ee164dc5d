package transform

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/query/ir"
)

func pattern() *ir.GraphIR {
	return &ir.GraphIR{Pattern: []ir.Element{
		{Node: &ir.Node{Alias: "a", Properties: []ir.PropertyMatch{{Key: "title", Value: ir.StringValue("Index")}}}},
		{Edge: &ir.Edge{Type: "WikiLink", Direction: ir.Out}},
		{Node: &ir.Node{Label: "Note"}},
	}}
}

func TestChain_EmptyPassesThrough(t *testing.T) {
	in := pattern()
	for _, c := range []*Chain{nil, NewChain()} {
		out, err := c.Apply(in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
		assert.NotSame(t, in, out)
	}
}

func TestChain_RunsInOrderAndStops(t *testing.T) {
	var order []string
	rec := func(name string, fail bool) Pass {
		return PassFunc{PassName: name, Fn: func(g *ir.GraphIR) (*ir.GraphIR, error) {
			order = append(order, name)
			if fail {
				return nil, &Error{Kind: Validation, Pass: name, Message: "nope"}
			}
			return g, nil
		}}
	}
	c := NewChain(rec("one", false), rec("two", true), rec("three", false))
	_, err := c.Apply(pattern())

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, Validation, te.Kind)
	assert.Equal(t, []string{"one", "two"}, order)
	assert.Equal(t, []string{"one", "two", "three"}, c.Names())
}

func TestChain_DoesNotMutateInput(t *testing.T) {
	in := pattern()
	_, err := Default().Apply(in)
	require.NoError(t, err)
	assert.Equal(t, "", in.Pattern[1].Edge.Alias)
	assert.Equal(t, "WikiLink", in.Pattern[1].Edge.Type)
	assert.Empty(t, in.Projections)
}

func TestNormalize(t *testing.T) {
	g := pattern()
	g.Pattern[2].Node.Alias = ""
	dup := ir.Filter{Alias: "a", Property: "path", Op: ir.Eq, Value: ir.StringValue("x")}
	g.Filters = []ir.Filter{dup, dup}

	out, err := NewChain(Normalize()).Apply(g)
	require.NoError(t, err)

	assert.Equal(t, "e0", out.Pattern[1].Edge.Alias)
	assert.Equal(t, "wikilink", out.Pattern[1].Edge.Type)
	assert.Equal(t, "n0", out.Pattern[2].Node.Alias)
	assert.Equal(t, "note", out.Pattern[2].Node.Label)
	assert.Len(t, out.Filters, 1)
	assert.Equal(t, []ir.Projection{{Alias: "n0"}}, out.Projections)
}

func TestNormalize_AvoidsTakenAliases(t *testing.T) {
	g := &ir.GraphIR{Pattern: []ir.Element{
		{Node: &ir.Node{Alias: "n0"}},
		{Edge: &ir.Edge{}},
		{Node: &ir.Node{}},
	}}
	out, err := Normalize().Apply(g)
	require.NoError(t, err)
	assert.Equal(t, "n1", out.Pattern[2].Node.Alias)
}

func TestValidate_Accepts(t *testing.T) {
	g := pattern()
	g.Pattern[1].Edge.Quantifier = &ir.Quantifier{Min: 1, Max: ir.Unbounded}
	g.Filters = []ir.Filter{{Alias: "a", Property: "path", Op: ir.StartsWith, Value: ir.StringValue("x")}}
	_, err := Default().Apply(g)
	assert.NoError(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(g *ir.GraphIR){
		"empty pattern":  func(g *ir.GraphIR) { g.Pattern = nil },
		"ends with edge": func(g *ir.GraphIR) { g.Pattern = g.Pattern[:2] },
		"edge in node slot": func(g *ir.GraphIR) {
			g.Pattern[0] = ir.Element{Edge: &ir.Edge{}}
		},
		"duplicate alias": func(g *ir.GraphIR) { g.Pattern[2].Node.Alias = "a" },
		"bad alias":       func(g *ir.GraphIR) { g.Pattern[0].Node.Alias = "1a" },
		"inverted quantifier": func(g *ir.GraphIR) {
			g.Pattern[1].Edge.Quantifier = &ir.Quantifier{Min: 3, Max: 2}
		},
		"quantifier too long": func(g *ir.GraphIR) {
			g.Pattern[1].Edge.Quantifier = &ir.Quantifier{Min: 1, Max: MaxHops + 1}
		},
		"unbound filter variable": func(g *ir.GraphIR) {
			g.Filters = []ir.Filter{{Alias: "zz", Property: "title", Value: ir.StringValue("x")}}
		},
		"unbound projection": func(g *ir.GraphIR) {
			g.Projections = []ir.Projection{{Alias: "zz"}}
		},
		"negative limit": func(g *ir.GraphIR) { g.Limit = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			g := pattern()
			mutate(g)
			_, err := Default().Apply(g)
			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, Validation, te.Kind)
			assert.NotEmpty(t, te.Message)
		})
	}
}

func TestFilterAllowlist(t *testing.T) {
	chain := Default().With(FilterAllowlist("title", "path"))

	g := pattern()
	g.Filters = []ir.Filter{{Alias: "a", Property: "title", Op: ir.Contains, Value: ir.StringValue("x")}}
	_, err := chain.Apply(g)
	require.NoError(t, err)

	g.Filters = []ir.Filter{{Alias: "a", Property: "secret", Op: ir.Eq, Value: ir.StringValue("x")}}
	_, err = chain.Apply(g)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, UnsupportedFilter, te.Kind)
	assert.Equal(t, "a.secret = 'x'", te.Pattern)
	assert.Equal(t, "filter_allowlist: unsupported filter a.secret = 'x'", te.Error())

	g.Filters = []ir.Filter{{Alias: "a", Property: "title", Op: ir.StartsWith, Value: ir.NumberValue(1)}}
	_, err = chain.Apply(g)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, UnsupportedFilter, te.Kind)
}

func TestChain_ConcurrentUse(t *testing.T) {
	chain := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := chain.Apply(pattern())
			assert.NoError(t, err)
			assert.Equal(t, "n0", out.Projections[0].Alias)
		}()
	}
	wg.Wait()
}
