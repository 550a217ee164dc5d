//go:build sqlite_fts5

package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/starford/kiln/internal/eav"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS blocks_fts USING fts5(
			entity_id UNINDEXED,
			position UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsertBlock(ctx context.Context, q queryer, b eav.Block) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM blocks_fts WHERE entity_id = ? AND position = ?`, b.EntityID, b.Position); err != nil {
		return classify("sqlitestore: upsert fts", err)
	}
	_, err := q.ExecContext(ctx, `INSERT INTO blocks_fts (entity_id, position, content) VALUES (?, ?, ?)`,
		b.EntityID, b.Position, b.Content)
	return classify("sqlitestore: upsert fts", err)
}

func ftsTruncate(ctx context.Context, q queryer, entityID string, from int) error {
	_, err := q.ExecContext(ctx, `DELETE FROM blocks_fts WHERE entity_id = ? AND position >= ?`, entityID, from)
	return classify("sqlitestore: truncate fts", err)
}

func ftsDeleteEntity(ctx context.Context, q queryer, entityID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM blocks_fts WHERE entity_id = ?`, entityID)
	return classify("sqlitestore: delete fts", err)
}

// Search performs an FTS5 full-text search over block content with snippets.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]eav.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT e.id,
		       coalesce(e.path, ''),
		       e.title,
		       snippet(blocks_fts, 2, '<b>', '</b>', '...', 32),
		       f.position
		FROM blocks_fts f JOIN entities e ON e.id = f.entity_id
		WHERE blocks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, classify("sqlitestore: search", err)
	}
	return scanHits(rows)
}
