package eavtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/query"
)

// Seed loads the query fixture:
//
//	index.md  -> Go, Rust, missing   tags moc          status published, rank 1
//	lang/go   -> Rust, index         tags lang/compiled, lang   status draft
//	lang/rust -> lang/go.md          tags lang/compiled
//	daily     -> Index               tags journal      status published
func Seed(t *testing.T, s eav.Store) {
	t.Helper()
	recs := eav.NewRecords(s)
	for _, rec := range []models.NoteRecord{
		{Path: "lang/go.md", Title: "Go", Tags: []string{"lang/compiled", "lang"}, Links: []string{"Rust", "index"},
			Properties: map[string]any{"status": "draft"}},
		{Path: "index.md", Title: "Index", Tags: []string{"moc"}, Links: []string{"Go", "Rust", "missing"},
			Properties: map[string]any{"status": "published", "rank": 1}},
		{Path: "lang/rust.md", Title: "Rust", Tags: []string{"lang/compiled"}, Links: []string{"lang/go.md"}},
		{Path: "daily/2024-01-01.md", Title: "Daily", Tags: []string{"journal"}, Links: []string{"Index"},
			Properties: map[string]any{"status": "published"}},
	} {
		_, err := recs.UpsertRecord(context.Background(), rec)
		require.NoError(t, err, rec.Path)
	}
}

// QueryCase is one query with the exact rows every backend must return.
type QueryCase struct {
	Name   string
	Text   string
	Params map[string]any
	Want   []map[string]any
}

// QueryCases run against the Seed fixture.
var QueryCases = []QueryCase{
	{
		Name: "pgq outlinks",
		Text: `MATCH (a {title:'Index'})-[:wikilink]->(b) RETURN b.path`,
		Want: []map[string]any{{"b.path": "lang/go.md"}, {"b.path": "lang/rust.md"}},
	},
	{
		Name: "sql-sugar inlinks",
		Text: `SELECT inlinks.path FROM 'Index'`,
		Want: []map[string]any{{"path": "daily/2024-01-01.md"}, {"path": "lang/go.md"}},
	},
	{
		Name: "jq outlinks",
		Text: `outlinks("Index") | .title`,
		Want: []map[string]any{{"title": "Go"}, {"title": "Rust"}},
	},
	{
		Name: "tag includes descendants",
		Text: `MATCH (n) WHERE n.tag = 'lang' RETURN n.path`,
		Want: []map[string]any{{"n.path": "lang/go.md"}, {"n.path": "lang/rust.md"}},
	},
	{
		Name: "tag exclusion",
		Text: `MATCH (n) WHERE n.tag <> 'lang' RETURN n.title`,
		Want: []map[string]any{{"n.title": "Daily"}, {"n.title": "Index"}},
	},
	{
		Name: "frontmatter equality",
		Text: `MATCH (n) WHERE n.status = 'published' RETURN n.title`,
		Want: []map[string]any{{"n.title": "Daily"}, {"n.title": "Index"}},
	},
	{
		Name: "not equal matches missing",
		Text: `MATCH (n) WHERE n.status <> 'draft' RETURN n.title`,
		Want: []map[string]any{{"n.title": "Daily"}, {"n.title": "Index"}, {"n.title": "Rust"}},
	},
	{
		Name: "contains ignores ascii case",
		Text: `MATCH (n) WHERE n.path CONTAINS 'LANG/' RETURN n.title`,
		Want: []map[string]any{{"n.title": "Go"}, {"n.title": "Rust"}},
	},
	{
		Name: "equality keeps case",
		Text: `MATCH (n) WHERE n.title = 'go' RETURN n.path`,
		Want: []map[string]any{},
	},
	{
		Name: "equality exact",
		Text: `MATCH (n) WHERE n.title = 'Go' RETURN n.path`,
		Want: []map[string]any{{"n.path": "lang/go.md"}},
	},
	{
		Name: "ends with",
		Text: `MATCH (n) WHERE n.path ENDS WITH '01.md' RETURN n.title AS t`,
		Want: []map[string]any{{"t": "Daily"}},
	},
	{
		Name: "numeric frontmatter",
		Text: `MATCH (n) WHERE n.rank = 1 RETURN n.path`,
		Want: []map[string]any{{"n.path": "index.md"}},
	},
	{
		Name: "version",
		Text: `MATCH (n:note) WHERE n.version = 1 AND n.title STARTS WITH 'd' RETURN n.title`,
		Want: []map[string]any{{"n.title": "Daily"}},
	},
	{
		Name: "bounded variable length",
		Text: `MATCH (a {title:'Daily'})-[e:wikilink*1..2]->(b) RETURN b.title, e.depth`,
		Want: []map[string]any{
			{"b.title": "Go", "e.depth": int64(2)},
			{"b.title": "Index", "e.depth": int64(1)},
			{"b.title": "Rust", "e.depth": int64(2)},
		},
	},
	{
		Name: "unbounded variable length stops at cycles",
		Text: `MATCH (a {title:'Go'})-[:wikilink*]->(b) RETURN b.title`,
		Want: []map[string]any{{"b.title": "Index"}, {"b.title": "Rust"}},
	},
	{
		Name: "zero length paths include the start",
		Text: `MATCH (a {title:'Rust'})-[:wikilink*0..1]->(b) RETURN b.title`,
		Want: []map[string]any{{"b.title": "Go"}, {"b.title": "Rust"}},
	},
	{
		Name: "incoming",
		Text: `MATCH (a {title:'Rust'})<-[:wikilink]-(b) RETURN b.title`,
		Want: []map[string]any{{"b.title": "Go"}, {"b.title": "Index"}},
	},
	{
		Name: "undirected",
		Text: `MATCH (a {title:'Rust'})-[:wikilink]-(b) RETURN b.title`,
		Want: []map[string]any{{"b.title": "Go"}, {"b.title": "Index"}},
	},
	{
		Name:   "parameter and limit",
		Text:   `MATCH (a)-[:wikilink]->(b) WHERE a.title = $src RETURN b.title LIMIT 1`,
		Params: map[string]any{"src": "Index"},
		Want:   []map[string]any{{"b.title": "Go"}},
	},
	{
		Name: "edge properties",
		Text: `MATCH (a {title:'Index'})-[e:wikilink]->(b) WHERE e.position = 1 RETURN b.title, e.target`,
		Want: []map[string]any{{"b.title": "Rust", "e.target": "Rust"}},
	},
	{
		Name: "two hops",
		Text: `MATCH (a {title:'Daily'})-[:wikilink]->(m)-[:wikilink]->(b) WHERE b.title <> 'Daily' RETURN m.title, b.title`,
		Want: []map[string]any{
			{"m.title": "Index", "b.title": "Go"},
			{"m.title": "Index", "b.title": "Rust"},
		},
	},
	{
		Name: "no rows",
		Text: `outlinks("Nowhere")`,
		Want: []map[string]any{},
	},
}

// RunQueries seeds a fresh store and checks every QueryCase through the
// default pipeline for backend ("sqlite" or "memory").
func RunQueries(t *testing.T, newStore Factory, backend string) {
	s := newStore(t)
	Seed(t, s)
	p, err := query.Default(backend, nil)
	require.NoError(t, err)

	for _, tc := range QueryCases {
		t.Run(tc.Name, func(t *testing.T) {
			res, err := p.Run(context.Background(), tc.Text, s, tc.Params)
			require.NoError(t, err)
			assert.Equal(t, tc.Want, res.Rows)
		})
	}

	t.Run("whole node", func(t *testing.T) {
		res, err := p.Run(context.Background(), `note("index.md")`, s, nil)
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		row := res.Rows[0]
		assert.Equal(t, "index.md", row["path"])
		assert.Equal(t, "Index", row["title"])
		assert.Equal(t, "note", row["type"])
		assert.NotEmpty(t, row["id"])
	})
}
