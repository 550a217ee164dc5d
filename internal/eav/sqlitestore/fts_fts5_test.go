//go:build sqlite_fts5

package sqlitestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/eav"
)

func putNote(t *testing.T, s eav.Store, path, title string, contents ...string) *eav.Entity {
	t.Helper()
	ctx := context.Background()
	e := &eav.Entity{Type: eav.EntityNote, Path: path, Title: title}
	require.NoError(t, s.CreateEntity(ctx, e))
	for i, c := range contents {
		require.NoError(t, s.UpsertBlock(ctx, eav.Block{
			EntityID: e.ID, Position: i, Parent: -1, Type: "paragraph",
			Content: c, Hash: blockhash.Sum("paragraph", []byte(c)),
		}))
	}
	return e
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	s := testStore(t)
	putNote(t, s, "fts.md", "FTS Note", "intro", "kiln provides powerful full-text search capabilities.")

	hits, err := s.Search(context.Background(), "powerful", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fts.md", hits[0].Path)
	assert.Equal(t, 1, hits[0].Position)
	assert.Contains(t, hits[0].Snippet, "<b>powerful</b>")
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	e := putNote(t, s, "gone.md", "Gone", "vanishing content")
	require.NoError(t, s.DeleteEntity(ctx, e.ID))

	hits, err := s.Search(ctx, "vanishing", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTS5_TruncateAndReplace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	e := putNote(t, s, "evo.md", "Evo", "original text", "trailing words")

	require.NoError(t, s.UpsertBlock(ctx, eav.Block{
		EntityID: e.ID, Position: 0, Parent: -1, Type: "paragraph",
		Content: "replacement text", Hash: blockhash.Sum("paragraph", []byte("replacement text")),
	}))
	require.NoError(t, s.TruncateBlocks(ctx, e.ID, 1))

	hits, err := s.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "old block content should be gone")

	hits, err = s.Search(ctx, "trailing", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "truncated block should be gone")

	hits, err = s.Search(ctx, "replacement", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Evo", hits[0].Title)
}
