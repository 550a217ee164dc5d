// Package eavtest is a conformance suite every eav.Store backend must pass.
// Backends run the same storage and query cases, so passing both suites on
// two backends means they return identical rows.
package eavtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/models"
)

// Factory returns an empty store owned by t.
type Factory func(t *testing.T) eav.Store

// RunStorage exercises every storage capability.
func RunStorage(t *testing.T, newStore Factory) {
	t.Run("entities", func(t *testing.T) { testEntities(t, newStore(t)) })
	t.Run("properties", func(t *testing.T) { testProperties(t, newStore(t)) })
	t.Run("relations", func(t *testing.T) { testRelations(t, newStore(t)) })
	t.Run("blocks", func(t *testing.T) { testBlocks(t, newStore(t)) })
	t.Run("tags", func(t *testing.T) { testTags(t, newStore(t)) })
	t.Run("embeddings", func(t *testing.T) { testEmbeddings(t, newStore(t)) })
	t.Run("update rollback", func(t *testing.T) { testUpdateRollback(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("records", func(t *testing.T) { testRecords(t, newStore(t)) })
	t.Run("search", func(t *testing.T) { testSearch(t, newStore(t)) })
}

func note(t *testing.T, s eav.Store, path, title string) *eav.Entity {
	t.Helper()
	e := &eav.Entity{Type: eav.EntityNote, Path: path, Title: title}
	require.NoError(t, s.CreateEntity(context.Background(), e))
	return e
}

func testEntities(t *testing.T, s eav.Store) {
	ctx := context.Background()
	e := note(t, s, "a.md", "A")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 1, e.Version)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := s.GetEntityByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "A", got.Title)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))

	err = s.CreateEntity(ctx, &eav.Entity{Type: eav.EntityNote, Path: "a.md"})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	err = s.CreateEntity(ctx, &eav.Entity{Path: "typeless.md"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	got.Title = "A2"
	got.ContentHash = blockhash.SumDocument([]byte("x"))
	got.UpdatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.UpdateEntity(ctx, got))
	assert.Equal(t, 2, got.Version)

	again, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "A2", again.Title)
	assert.Equal(t, 2, again.Version)
	assert.Equal(t, got.ContentHash, again.ContentHash)
	assert.True(t, again.UpdatedAt.Equal(got.UpdatedAt))

	_, err = s.GetEntity(ctx, "nope")
	assert.True(t, apperr.IsNotFound(err))
	_, err = s.GetEntityByPath(ctx, "nope.md")
	assert.True(t, apperr.IsNotFound(err))
	err = s.UpdateEntity(ctx, &eav.Entity{ID: "nope", Type: eav.EntityNote})
	assert.True(t, apperr.IsNotFound(err))

	note(t, s, "dir/b.md", "B")
	note(t, s, "dir/c.md", "C")
	tagless := &eav.Entity{Type: eav.EntityTag, Title: "tag"}
	require.NoError(t, s.CreateEntity(ctx, tagless))

	list, err := s.ListEntities(ctx, eav.EntityFilter{Type: eav.EntityNote})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "dir/b.md", "dir/c.md"}, paths(list))

	list, err = s.ListEntities(ctx, eav.EntityFilter{PathPrefix: "dir/", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/c.md"}, paths(list))

	list, err = s.ListEntities(ctx, eav.EntityFilter{Title: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/b.md"}, paths(list))

	n, err := s.CountEntities(ctx, eav.EntityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, s.DeleteEntity(ctx, e.ID))
	_, err = s.GetEntity(ctx, e.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(s.DeleteEntity(ctx, e.ID)))
}

func paths(es []eav.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Path
	}
	return out
}

func testProperties(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "A")
	b := note(t, s, "b.md", "B")

	require.NoError(t, s.SetProperty(ctx, eav.Property{EntityID: a.ID, Namespace: eav.NamespaceFrontmatter, Key: "status", Value: eav.Text("draft")}))
	require.NoError(t, s.SetProperty(ctx, eav.Property{EntityID: a.ID, Namespace: eav.NamespaceFrontmatter, Key: "rank", Value: eav.Number(3)}))
	require.NoError(t, s.SetProperty(ctx, eav.Property{EntityID: a.ID, Namespace: eav.PluginNamespace("x"), Key: "k", Value: eav.Bool(true)}))
	require.NoError(t, s.SetProperty(ctx, eav.Property{EntityID: b.ID, Namespace: eav.NamespaceFrontmatter, Key: "status", Value: eav.Text("draft")}))

	p, err := s.GetProperty(ctx, a.ID, eav.NamespaceFrontmatter, "rank")
	require.NoError(t, err)
	assert.Equal(t, eav.Number(3), p.Value)

	require.NoError(t, s.SetProperty(ctx, eav.Property{EntityID: a.ID, Namespace: eav.NamespaceFrontmatter, Key: "rank", Value: eav.Number(4)}))
	p, err = s.GetProperty(ctx, a.ID, eav.NamespaceFrontmatter, "rank")
	require.NoError(t, err)
	assert.Equal(t, "4", p.Value.Raw)

	props, err := s.ListProperties(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, props, 3)
	assert.Equal(t, eav.NamespaceFrontmatter, props[0].Namespace)
	assert.Equal(t, "rank", props[0].Key)
	assert.Equal(t, "status", props[1].Key)
	assert.Equal(t, "plugin:x", props[2].Namespace)

	ids, err := s.FindByProperty(ctx, eav.NamespaceFrontmatter, "status", eav.Text("draft"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	require.NoError(t, s.ReplaceProperties(ctx, a.ID, eav.NamespaceFrontmatter, []eav.Property{
		{Key: "status", Value: eav.Text("done")},
	}))
	props, err = s.ListProperties(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, "done", props[0].Value.Raw)
	assert.Equal(t, "plugin:x", props[1].Namespace)

	require.NoError(t, s.DeleteProperty(ctx, a.ID, eav.NamespaceFrontmatter, "status"))
	_, err = s.GetProperty(ctx, a.ID, eav.NamespaceFrontmatter, "status")
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, s.DeleteProperty(ctx, a.ID, eav.NamespaceFrontmatter, "status"))
}

func testRelations(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "A")
	b := note(t, s, "b.md", "B")

	r := &eav.Relation{From: a.ID, To: b.ID, Type: eav.RelationWikilink, Target: "b"}
	require.NoError(t, s.AddRelation(ctx, r))
	assert.NotEmpty(t, r.ID)

	require.NoError(t, s.ReplaceRelations(ctx, a.ID, []eav.Relation{
		{To: b.ID, Type: eav.RelationWikilink, Target: "b", Position: 0},
		{Type: eav.RelationWikilink, Target: "Later", Position: 1},
		{To: b.ID, Type: eav.RelationEmbed, Target: "b", Position: 2},
	}))

	out, err := s.Outgoing(ctx, a.ID, "")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Target)
	assert.False(t, out[1].Resolved())

	out, err = s.Outgoing(ctx, a.ID, eav.RelationEmbed)
	require.NoError(t, err)
	require.Len(t, out, 1)

	in, err := s.Incoming(ctx, b.ID, eav.RelationWikilink)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, a.ID, in[0].From)

	later := note(t, s, "later.md", "Later")
	n, err := s.ResolveDangling(ctx, later.ID, eav.LinkNames(later.Path, later.Title))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	in, err = s.Incoming(ctx, later.ID, "")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, 1, in[0].Position)

	all, err := s.AllRelations(ctx, eav.RelationWikilink)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.RemoveRelation(ctx, all[0].ID))
	assert.True(t, apperr.IsNotFound(s.RemoveRelation(ctx, all[0].ID)))
}

func testBlocks(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "A")
	b := note(t, s, "b.md", "B")
	shared := blockhash.Sum("paragraph", []byte("shared"))

	for i, c := range []string{"# H", "shared", "tail"} {
		typ := "paragraph"
		if i == 0 {
			typ = "heading"
		}
		require.NoError(t, s.UpsertBlock(ctx, eav.Block{
			EntityID: a.ID, Position: i, Parent: -1, Type: typ, Content: c,
			Hash: blockhash.Sum(typ, []byte(c)), Offset: i * 10,
		}))
	}
	require.NoError(t, s.UpsertBlock(ctx, eav.Block{EntityID: b.ID, Position: 0, Parent: -1, Type: "paragraph", Content: "shared", Hash: shared}))

	blocks, err := s.Blocks(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "shared", blocks[1].Content)
	assert.Equal(t, 10, blocks[1].Offset)
	assert.Equal(t, shared, blocks[1].Hash)

	got, err := s.BlockByHash(ctx, shared)
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Content)

	_, err = s.BlockByHash(ctx, blockhash.Sum("paragraph", []byte("absent")))
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, s.UpsertBlock(ctx, eav.Block{EntityID: a.ID, Position: 1, Parent: 0, Type: "paragraph", Content: "changed",
		Hash: blockhash.Sum("paragraph", []byte("changed"))}))
	require.NoError(t, s.TruncateBlocks(ctx, a.ID, 2))
	blocks, err = s.Blocks(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "changed", blocks[1].Content)
	assert.Equal(t, 0, blocks[1].Parent)
}

func testTags(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "A")
	b := note(t, s, "b.md", "B")

	require.NoError(t, s.ReplaceTags(ctx, a.ID, []string{"project/kiln", "go", " ", "go"}))
	require.NoError(t, s.AttachTag(ctx, b.ID, "project"))

	tags, err := s.TagsFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"project/kiln", "go"}, tags)

	ids, err := s.EntitiesByTag(ctx, "project")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	ids, err = s.EntitiesByTag(ctx, "proj")
	require.NoError(t, err)
	assert.Empty(t, ids)

	all, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []eav.Tag{
		{Name: "go", Count: 1},
		{Name: "project", Count: 1},
		{Name: "project/kiln", Parent: "project", Count: 1},
	}, all)

	require.NoError(t, s.DetachTag(ctx, a.ID, "go"))
	tags, err = s.TagsFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"project/kiln"}, tags)

	assert.Error(t, s.AttachTag(ctx, a.ID, ""))
}

func testEmbeddings(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "A")

	vec, err := s.Embedding(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, vec)

	require.NoError(t, s.SetEmbedding(ctx, a.ID, []float32{0.5, -1, 3.25}))
	vec, err = s.Embedding(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 3.25}, vec)

	h := blockhash.Sum("paragraph", []byte("x"))
	_, ok, err := s.BlockEmbedding(ctx, h)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetBlockEmbedding(ctx, h, []float32{1, 2}))
	vec, ok, err = s.BlockEmbedding(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2}, vec)
}

func testUpdateRollback(t *testing.T, s eav.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx eav.Store) error {
		e := &eav.Entity{Type: eav.EntityNote, Path: "half.md"}
		if err := tx.CreateEntity(ctx, e); err != nil {
			return err
		}
		if err := tx.ReplaceTags(ctx, e.ID, []string{"x"}); err != nil {
			return err
		}
		if _, err := tx.GetEntityByPath(ctx, "half.md"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetEntityByPath(ctx, "half.md")
	assert.True(t, apperr.IsNotFound(err))
	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = s.Update(cancelled, func(tx eav.Store) error {
		return tx.CreateEntity(cancelled, &eav.Entity{Type: eav.EntityNote, Path: "never.md"})
	})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.GetEntityByPath(ctx, "never.md")
	assert.True(t, apperr.IsNotFound(err))

	err = s.Update(ctx, func(tx eav.Store) error {
		return tx.Update(ctx, func(inner eav.Store) error {
			return inner.CreateEntity(ctx, &eav.Entity{Type: eav.EntityNote, Path: "nested.md"})
		})
	})
	require.NoError(t, err)
	_, err = s.GetEntityByPath(ctx, "nested.md")
	assert.NoError(t, err)
}

func testDeleteCascades(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "A")
	b := note(t, s, "b.md", "B")

	require.NoError(t, s.ReplaceRelations(ctx, a.ID, []eav.Relation{{To: b.ID, Type: eav.RelationWikilink, Target: "B"}}))
	require.NoError(t, s.ReplaceRelations(ctx, b.ID, []eav.Relation{{To: a.ID, Type: eav.RelationWikilink, Target: "A"}}))
	require.NoError(t, s.SetProperty(ctx, eav.Property{EntityID: b.ID, Namespace: eav.NamespaceCore, Key: "k", Value: eav.Text("v")}))
	require.NoError(t, s.ReplaceTags(ctx, b.ID, []string{"t"}))
	require.NoError(t, s.UpsertBlock(ctx, eav.Block{EntityID: b.ID, Type: "paragraph", Content: "c", Hash: blockhash.Sum("paragraph", []byte("c"))}))
	require.NoError(t, s.SetEmbedding(ctx, b.ID, []float32{1}))

	require.NoError(t, s.DeleteEntity(ctx, b.ID))

	out, err := s.Outgoing(ctx, a.ID, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Resolved(), "incoming relation becomes unresolved")
	assert.Equal(t, "B", out[0].Target)

	in, err := s.Incoming(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, in)

	props, err := s.ListProperties(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, props)
	blocks, err := s.Blocks(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
	ids, err := s.EntitiesByTag(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, ids)
	vec, err := s.Embedding(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, vec)

	// Recreating the path gets a fresh ID and re-binds the dangling link.
	b2 := note(t, s, "b.md", "B")
	assert.NotEqual(t, b.ID, b2.ID)
	n, err := s.ResolveDangling(ctx, b2.ID, eav.LinkNames(b2.Path, b2.Title))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testRecords(t *testing.T, s eav.Store) {
	ctx := context.Background()
	recs := eav.NewRecords(s)

	first, err := recs.UpsertRecord(ctx, models.NoteRecord{
		Path:        "a.md",
		ContentHash: blockhash.SumDocument([]byte("a")),
		Title:       "A",
		Tags:        []string{"x", "y/z"},
		Links:       []string{"B", "missing"},
		Properties:  map[string]any{"status": "draft", "n": 2},
		Embedding:   []float32{0.25},
	})
	require.NoError(t, err)

	_, err = recs.UpsertRecord(ctx, models.NoteRecord{Path: "b.md", Title: "B"})
	require.NoError(t, err)

	rec, err := recs.GetRecord(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Title)
	assert.Equal(t, []string{"x", "y/z"}, rec.Tags)
	assert.Equal(t, []string{"B", "missing"}, rec.Links)
	assert.Equal(t, map[string]any{"status": "draft", "n": float64(2)}, rec.Properties)
	assert.Equal(t, []float32{0.25}, rec.Embedding)
	assert.Equal(t, blockhash.SumDocument([]byte("a")), rec.ContentHash)

	out, err := s.Outgoing(ctx, first.ID, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Resolved(), "link to B is bound once B is ingested")
	assert.False(t, out[1].Resolved())

	again, err := recs.UpsertRecord(ctx, models.NoteRecord{Path: "a.md", Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 2, again.Version)

	list, err := recs.ListRecords(ctx, eav.EntityFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Empty(t, list[0].Tags)

	_, err = recs.UpsertRecord(ctx, models.NoteRecord{})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func testSearch(t *testing.T, s eav.Store) {
	ctx := context.Background()
	a := note(t, s, "a.md", "Alpha")
	b := note(t, s, "b.md", "Beta")
	require.NoError(t, s.UpsertBlock(ctx, eav.Block{EntityID: a.ID, Position: 0, Type: "paragraph",
		Content: "kiln provides powerful search", Hash: blockhash.Sum("paragraph", []byte("kiln provides powerful search"))}))
	require.NoError(t, s.UpsertBlock(ctx, eav.Block{EntityID: b.ID, Position: 0, Type: "paragraph",
		Content: "nothing here", Hash: blockhash.Sum("paragraph", []byte("nothing here"))}))

	hits, err := s.Search(ctx, "powerful", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.md", hits[0].Path)
	assert.Equal(t, a.ID, hits[0].EntityID)
	assert.NotEmpty(t, hits[0].Snippet)

	recs, err := eav.NewRecords(s).SearchRecords(ctx, "powerful", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Alpha", recs[0].Title)
}
