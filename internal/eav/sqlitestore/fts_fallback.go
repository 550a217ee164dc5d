//go:build !sqlite_fts5

package sqlitestore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/starford/kiln/internal/eav"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE over blocks.content.
	return nil
}

func ftsUpsertBlock(_ context.Context, _ queryer, _ eav.Block) error { return nil }

func ftsTruncate(_ context.Context, _ queryer, _ string, _ int) error { return nil }

func ftsDeleteEntity(_ context.Context, _ queryer, _ string) error { return nil }

// Search performs a case-insensitive substring search over titles and block
// content (fallback when FTS5 is not compiled in). Title hits carry position -1.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]eav.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, coalesce(path, ''), title, title, -1
		FROM entities
		WHERE title LIKE ? ESCAPE '\'
		UNION ALL
		SELECT e.id, coalesce(e.path, ''), e.title, substr(b.content, 1, 200), b.position
		FROM blocks b JOIN entities e ON e.id = b.entity_id
		WHERE b.content LIKE ? ESCAPE '\'
		ORDER BY 2, 5
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, classify("sqlitestore: search", err)
	}
	return scanHits(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
