package syntax

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/query/ir"
)

// stub recognizes every input and tags the IR with its name.
type stub struct {
	name     string
	priority int
	err      error
}

func (s stub) Name() string  { return s.name }
func (s stub) Priority() int { return s.priority }
func (s stub) Parse(string) (*ir.GraphIR, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ir.GraphIR{Pattern: []ir.Element{{Node: &ir.Node{Alias: s.name}}}}, nil
}

func TestRegistry_PriorityDeterminism(t *testing.T) {
	a := stub{name: "A", priority: 50}
	b := stub{name: "B", priority: 40}

	for _, reg := range []*Registry{
		NewBuilder().Register(a, b).Build(),
		NewBuilder().Register(b, a).Build(),
	} {
		for i := 0; i < 100; i++ {
			g, err := reg.Parse("x")
			require.NoError(t, err)
			assert.Equal(t, "A", g.Pattern[0].Node.Alias)
		}
		assert.Equal(t, []string{"A", "B"}, reg.Names())
	}
}

func TestRegistry_TiesKeepInsertionOrder(t *testing.T) {
	reg := NewBuilder().Register(stub{name: "first", priority: 10}, stub{name: "second", priority: 10}).Build()
	g, err := reg.Parse("x")
	require.NoError(t, err)
	assert.Equal(t, "first", g.Pattern[0].Node.Alias)
}

func TestRegistry_NoMatchingSyntax(t *testing.T) {
	reg := Default()
	_, err := reg.Parse("☆garbage☆")
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, NoMatchingSyntax, pe.Kind)
	assert.Len(t, pe.Tried, reg.Len())
	assert.Equal(t, []string{"pgq", "sql", "jq"}, pe.Tried)
	assert.Contains(t, err.Error(), "tried: pgq, sql, jq")
}

func TestRegistry_OwnerErrorIsSurfaced(t *testing.T) {
	malformed := &ParseError{Kind: Jaq, Message: "boom"}
	reg := NewBuilder().Register(
		stub{name: "high", priority: 50, err: ErrNotRecognized},
		stub{name: "mid", priority: 40, err: malformed},
		stub{name: "low", priority: 30},
	).Build()

	_, err := reg.Parse("x")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, malformed, pe)
}

func TestRegistry_PlainErrorBecomesInvalid(t *testing.T) {
	reg := NewBuilder().Register(stub{name: "s", priority: 1, err: errors.New("bad")}).Build()
	_, err := reg.Parse("x")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, Invalid, pe.Kind)
	assert.Equal(t, "invalid query: s: bad", pe.Error())
}

func TestRegistry_Recognizer(t *testing.T) {
	reg := Default()
	assert.Equal(t, "pgq", reg.Recognizer("MATCH (a) RETURN a"))
	assert.Equal(t, "sql", reg.Recognizer("select note from 'x'"))
	assert.Equal(t, "jq", reg.Recognizer(`outlinks("x")`))
	assert.Equal(t, "", reg.Recognizer("hello"))
}

func TestRoundTripEquivalence(t *testing.T) {
	reg := Default()
	queries := []string{
		`outlinks("Index")`,
		`SELECT outlinks FROM 'Index'`,
		`MATCH (a {title:'Index'})-[:wikilink]->(b)`,
	}
	var irs []*ir.GraphIR
	for _, q := range queries {
		g, err := reg.Parse(q)
		require.NoError(t, err, q)
		irs = append(irs, g)
	}
	for i := 1; i < len(irs); i++ {
		assert.True(t, ir.Equivalent(irs[0], irs[i]), "%s vs %s", irs[0], irs[i])
	}

	want := &ir.GraphIR{Pattern: []ir.Element{
		{Node: &ir.Node{Properties: []ir.PropertyMatch{{Key: "title", Value: ir.StringValue("Index")}}}},
		{Edge: &ir.Edge{Type: "wikilink", Direction: ir.Out}},
		{Node: &ir.Node{}},
	}}
	assert.True(t, ir.Equivalent(want, irs[0]))
}

func TestPGQ_Full(t *testing.T) {
	g, err := NewPGQ().Parse(`MATCH (a:note {title: 'Index', rank: 2})<-[r:embed*1..3]-(b)
		WHERE b.path STARTS WITH 'daily/' AND b.status <> $status AND a.done = true
		RETURN b.title AS title, b LIMIT 10`)
	require.NoError(t, err)

	require.Len(t, g.Pattern, 3)
	a := g.Pattern[0].Node
	assert.Equal(t, "a", a.Alias)
	assert.Equal(t, "note", a.Label)
	assert.Equal(t, []ir.PropertyMatch{
		{Key: "title", Value: ir.StringValue("Index")},
		{Key: "rank", Value: ir.NumberValue(2)},
	}, a.Properties)

	e := g.Pattern[1].Edge
	assert.Equal(t, "r", e.Alias)
	assert.Equal(t, "embed", e.Type)
	assert.Equal(t, ir.In, e.Direction)
	assert.Equal(t, &ir.Quantifier{Min: 1, Max: 3}, e.Quantifier)

	assert.Equal(t, []ir.Filter{
		{Alias: "b", Property: "path", Op: ir.StartsWith, Value: ir.StringValue("daily/")},
		{Alias: "b", Property: "status", Op: ir.Ne, Value: ir.ParamValue("status")},
		{Alias: "a", Property: "done", Op: ir.Eq, Value: ir.BoolValue(true)},
	}, g.Filters)
	assert.Equal(t, []ir.Projection{{Alias: "b", Property: "title", As: "title"}, {Alias: "b"}}, g.Projections)
	assert.Equal(t, 10, g.Limit)
}

func TestPGQ_EdgeForms(t *testing.T) {
	cases := []struct {
		query string
		dir   ir.Direction
		quant *ir.Quantifier
	}{
		{"MATCH (a)-->(b)", ir.Out, nil},
		{"MATCH (a)<--(b)", ir.In, nil},
		{"MATCH (a)--(b)", ir.Undirected, nil},
		{"MATCH (a)<-[]->(b)", ir.Both, nil},
		{"MATCH (a)-[*]->(b)", ir.Out, &ir.Quantifier{Min: 1, Max: ir.Unbounded}},
		{"MATCH (a)-[+]->(b)", ir.Out, &ir.Quantifier{Min: 1, Max: ir.Unbounded}},
		{"MATCH (a)-[*2]->(b)", ir.Out, &ir.Quantifier{Min: 2, Max: 2}},
		{"MATCH (a)-[*..4]->(b)", ir.Out, &ir.Quantifier{Min: 1, Max: 4}},
		{"MATCH (a)-[*2..]->(b)", ir.Out, &ir.Quantifier{Min: 2, Max: ir.Unbounded}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			g, err := NewPGQ().Parse(tc.query)
			require.NoError(t, err)
			e := g.Pattern[1].Edge
			assert.Equal(t, tc.dir, e.Direction)
			assert.Equal(t, tc.quant, e.Quantifier)
		})
	}
}

func TestPGQ_Malformed(t *testing.T) {
	for _, q := range []string{
		"MATCH (a",
		"MATCH (a)-[:x->(b)",
		"MATCH (a) WHERE a.title ~ 'x'",
		"MATCH (a) RETURN",
		"MATCH (a) LIMIT many",
		"MATCH (a) extra",
		"MATCH (a {title: 'open)",
	} {
		t.Run(q, func(t *testing.T) {
			_, err := Default().Parse(q)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, Pgq, pe.Kind)
			assert.NotEmpty(t, pe.Errors)
		})
	}
}

func TestSQL_Forms(t *testing.T) {
	g, err := NewSQL().Parse(`select inlinks.title, path from "notes/Go.md" where title like 'Intro%' and b.rank != 3 limit 4`)
	require.NoError(t, err)

	assert.Equal(t, ir.In, g.Pattern[1].Edge.Direction)
	assert.Equal(t, "path", g.Pattern[0].Node.Properties[0].Key)
	assert.Equal(t, []ir.Projection{{Alias: "b", Property: "title", As: "title"}, {Alias: "b", Property: "path", As: "path"}}, g.Projections)
	assert.Equal(t, []ir.Filter{
		{Alias: "b", Property: "title", Op: ir.StartsWith, Value: ir.StringValue("Intro")},
		{Alias: "b", Property: "rank", Op: ir.Ne, Value: ir.NumberValue(3)},
	}, g.Filters)
	assert.Equal(t, 4, g.Limit)

	g, err = NewSQL().Parse(`SELECT note FROM Index`)
	require.NoError(t, err)
	require.Len(t, g.Pattern, 1)
	assert.Equal(t, "a", g.Pattern[0].Node.Alias)
}

func TestSQL_Malformed(t *testing.T) {
	for _, q := range []string{
		"SELECT everything FROM 'x'",
		"SELECT outlinks 'x'",
		"SELECT outlinks FROM 'x' WHERE title LIKE 'a%b%'",
		"SELECT outlinks FROM 'x' WHERE other.title = 'y'",
	} {
		_, err := Default().Parse(q)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, q)
		assert.Equal(t, SqlAlias, pe.Kind, q)
	}
}

func TestLikeFilter(t *testing.T) {
	cases := map[string]ir.Op{"%go%": ir.Contains, "go%": ir.StartsWith, "%go": ir.EndsWith, "go": ir.Eq}
	for pattern, op := range cases {
		got, val, err := likeFilter(pattern)
		require.NoError(t, err)
		assert.Equal(t, op, got, pattern)
		assert.Equal(t, "go", val)
	}
}

func TestJQ_Stages(t *testing.T) {
	g, err := NewJQ().Parse(`neighbors("Index") | select(.path | startswith("daily/")) | select(.draft == false) | {title, path} | limit(3)`)
	require.NoError(t, err)

	assert.Equal(t, ir.Undirected, g.Pattern[1].Edge.Direction)
	assert.Equal(t, []ir.Filter{
		{Alias: "b", Property: "path", Op: ir.StartsWith, Value: ir.StringValue("daily/")},
		{Alias: "b", Property: "draft", Op: ir.Eq, Value: ir.BoolValue(false)},
	}, g.Filters)
	assert.Equal(t, []ir.Projection{{Alias: "b", Property: "title", As: "title"}, {Alias: "b", Property: "path", As: "path"}}, g.Projections)
	assert.Equal(t, 3, g.Limit)

	g, err = NewJQ().Parse(`inlinks('Index') | .title`)
	require.NoError(t, err)
	assert.Equal(t, ir.In, g.Pattern[1].Edge.Direction)
	assert.Equal(t, []ir.Projection{{Alias: "b", Property: "title", As: "title"}}, g.Projections)
}

func TestJQ_Malformed(t *testing.T) {
	for _, q := range []string{
		`.title`,
		`frobnicate("x")`,
		`outlinks(Index)`,
		`outlinks("x") | select(.a > 1)`,
		`outlinks("x") | .title | select(.a == 1)`,
		`outlinks("x") | select(.a | matches("y"))`,
		`outlinks("")`,
	} {
		_, err := Default().Parse(q)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, q)
		assert.Equal(t, Jaq, pe.Kind, q)
	}
}

func TestLex(t *testing.T) {
	toks, err := lex(`a.b..3 != 'it\'s' $p -1.5`)
	require.NoError(t, err)
	var texts []string
	for _, tk := range toks[:len(toks)-1] {
		texts = append(texts, tk.text)
	}
	assert.Equal(t, []string{"a", ".", "b", "..", "3", "!=", "it's", "p", "-", "1.5"}, texts)

	_, err = lex(`'open`)
	assert.Error(t, err)
	_, err = lex(`a ~ b`)
	assert.Error(t, err)
}
