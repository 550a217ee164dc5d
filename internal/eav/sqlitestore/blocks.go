package sqlitestore

import (
	"context"

	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/eav"
)

const blockColumns = `entity_id, position, parent, type, content, hash, byte_offset, level`

func (s *Store) UpsertBlock(ctx context.Context, b eav.Block) error {
	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO blocks (`+blockColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, position) DO UPDATE SET
				parent      = excluded.parent,
				type        = excluded.type,
				content     = excluded.content,
				hash        = excluded.hash,
				byte_offset = excluded.byte_offset,
				level       = excluded.level
		`, b.EntityID, b.Position, b.Parent, b.Type, b.Content, b.Hash, b.Offset, b.Level)
		if err != nil {
			return classify("sqlitestore: upsert block", err)
		}
		return ftsUpsertBlock(ctx, tx.q, b)
	})
}

func (s *Store) Blocks(ctx context.Context, entityID string) ([]eav.Block, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE entity_id = ? ORDER BY position`, entityID)
	if err != nil {
		return nil, classify("sqlitestore: blocks", err)
	}
	defer rows.Close()

	var out []eav.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, classify("sqlitestore: blocks", err)
		}
		out = append(out, *b)
	}
	return out, classify("sqlitestore: blocks", rows.Err())
}

func (s *Store) BlockByHash(ctx context.Context, hash blockhash.Hash) (*eav.Block, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+blockColumns+` FROM blocks WHERE hash = ?
		ORDER BY entity_id, position LIMIT 1
	`, hash)
	b, err := scanBlock(row)
	if err != nil {
		return nil, classify("sqlitestore: block "+hash.Short(), err)
	}
	return b, nil
}

func (s *Store) TruncateBlocks(ctx context.Context, entityID string, from int) error {
	return s.atomic(ctx, func(tx *Store) error {
		if err := ftsTruncate(ctx, tx.q, entityID, from); err != nil {
			return err
		}
		_, err := tx.q.ExecContext(ctx, `DELETE FROM blocks WHERE entity_id = ? AND position >= ?`, entityID, from)
		return classify("sqlitestore: truncate blocks", err)
	})
}

func scanBlock(sc scanner) (*eav.Block, error) {
	var b eav.Block
	if err := sc.Scan(&b.EntityID, &b.Position, &b.Parent, &b.Type, &b.Content, &b.Hash, &b.Offset, &b.Level); err != nil {
		return nil, err
	}
	return &b, nil
}
