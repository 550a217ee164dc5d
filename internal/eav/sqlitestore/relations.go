package sqlitestore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

const relationColumns = `id, from_entity_id, to_entity_id, relation_type, target, block_hash, position`

func (s *Store) AddRelation(ctx context.Context, r *eav.Relation) error {
	return s.atomic(ctx, func(tx *Store) error {
		return tx.addRelation(ctx, r)
	})
}

func (s *Store) addRelation(ctx context.Context, r *eav.Relation) error {
	if r.From == "" || r.Type == "" {
		return apperr.Errorf(apperr.KindInvalid, "sqlitestore: add relation", "from and type are required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO relations (`+relationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.From, nullString(r.To), r.Type, r.Target, r.BlockHash, r.Position)
	return classify("sqlitestore: add relation", err)
}

func (s *Store) RemoveRelation(ctx context.Context, id string) error {
	return s.atomic(ctx, func(tx *Store) error {
		res, err := tx.q.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
		if err != nil {
			return classify("sqlitestore: remove relation", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("sqlitestore: remove relation", id)
		}
		return nil
	})
}

func (s *Store) Outgoing(ctx context.Context, entityID, relType string) ([]eav.Relation, error) {
	return s.relations(ctx, "sqlitestore: outgoing", `
		SELECT `+relationColumns+` FROM relations
		WHERE from_entity_id = ? AND (? = '' OR relation_type = ?)
		ORDER BY position, id
	`, entityID, relType, relType)
}

func (s *Store) Incoming(ctx context.Context, entityID, relType string) ([]eav.Relation, error) {
	return s.relations(ctx, "sqlitestore: incoming", `
		SELECT `+relationColumns+` FROM relations
		WHERE to_entity_id = ? AND (? = '' OR relation_type = ?)
		ORDER BY from_entity_id, position, id
	`, entityID, relType, relType)
}

func (s *Store) AllRelations(ctx context.Context, relType string) ([]eav.Relation, error) {
	return s.relations(ctx, "sqlitestore: all relations", `
		SELECT `+relationColumns+` FROM relations
		WHERE ? = '' OR relation_type = ?
		ORDER BY from_entity_id, position, id
	`, relType, relType)
}

func (s *Store) ReplaceRelations(ctx context.Context, entityID string, rels []eav.Relation) error {
	return s.atomic(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM relations WHERE from_entity_id = ?`, entityID); err != nil {
			return classify("sqlitestore: replace relations", err)
		}
		for i := range rels {
			r := rels[i]
			r.ID = ""
			r.From = entityID
			if err := tx.addRelation(ctx, &r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ResolveDangling(ctx context.Context, entityID string, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	var n int64
	err := s.atomic(ctx, func(tx *Store) error {
		args := make([]any, 0, len(names)+1)
		args = append(args, entityID)
		for _, name := range names {
			args = append(args, name)
		}
		res, err := tx.q.ExecContext(ctx, `
			UPDATE relations SET to_entity_id = ?
			WHERE to_entity_id IS NULL AND target IN (?`+strings.Repeat(", ?", len(names)-1)+`)
		`, args...)
		if err != nil {
			return classify("sqlitestore: resolve dangling", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

func (s *Store) relations(ctx context.Context, op, query string, args ...any) ([]eav.Relation, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []eav.Relation
	for rows.Next() {
		var (
			r  eav.Relation
			to sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.From, &to, &r.Type, &r.Target, &r.BlockHash, &r.Position); err != nil {
			return nil, classify(op, err)
		}
		r.To = to.String
		out = append(out, r)
	}
	return out, classify(op, rows.Err())
}

func scanIDs(rows *sql.Rows, op string) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(op, err)
		}
		out = append(out, id)
	}
	return out, classify(op, rows.Err())
}
