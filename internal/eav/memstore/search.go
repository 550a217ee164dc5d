package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/starford/kiln/internal/eav"
)

const snippetRunes = 200

// Search matches titles and block content by ASCII case-insensitive
// substring. Title hits carry position -1.
func (s *Store) Search(_ context.Context, query string, limit int) ([]eav.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	st := s.snapshot()
	needle := asciiLower(query)

	var hits []eav.SearchHit
	for id, e := range st.entities {
		if strings.Contains(asciiLower(e.Title), needle) {
			hits = append(hits, eav.SearchHit{EntityID: id, Path: e.Path, Title: e.Title, Snippet: e.Title, Position: -1})
		}
		for pos, b := range st.blocks[id] {
			if strings.Contains(asciiLower(b.Content), needle) {
				hits = append(hits, eav.SearchHit{EntityID: id, Path: e.Path, Title: e.Title, Snippet: truncateRunes(b.Content, snippetRunes), Position: pos})
			}
		}
	}
	slices.SortFunc(hits, func(a, b eav.SearchHit) int {
		return cmp.Or(strings.Compare(a.Path, b.Path), cmp.Compare(a.Position, b.Position))
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}

// asciiLower folds A-Z only, as SQLite's LIKE and lower() do.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
