package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/eav"
)

const entityColumns = `id, type, path, title, content_hash, version, created_at, updated_at`

func (s *Store) CreateEntity(ctx context.Context, e *eav.Entity) error {
	if e.Type == "" {
		return apperr.Errorf(apperr.KindInvalid, "sqlitestore: create entity", "missing type")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	e.Version = 1
	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO entities (`+entityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, string(e.Type), nullString(e.Path), e.Title, e.ContentHash, e.Version,
			eav.FormatTime(e.CreatedAt), eav.FormatTime(e.UpdatedAt))
		return classify("sqlitestore: create entity "+e.Path, err)
	})
}

func (s *Store) UpdateEntity(ctx context.Context, e *eav.Entity) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	return s.atomic(ctx, func(tx *Store) error {
		err := tx.q.QueryRowContext(ctx, `
			UPDATE entities SET
				type         = ?,
				path         = ?,
				title        = ?,
				content_hash = ?,
				updated_at   = ?,
				version      = version + 1
			WHERE id = ?
			RETURNING version
		`, string(e.Type), nullString(e.Path), e.Title, e.ContentHash, eav.FormatTime(e.UpdatedAt), e.ID).Scan(&e.Version)
		return classify("sqlitestore: update entity "+e.ID, err)
	})
}

func (s *Store) GetEntity(ctx context.Context, id string) (*eav.Entity, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err != nil {
		return nil, classify("sqlitestore: get entity "+id, err)
	}
	return e, nil
}

func (s *Store) GetEntityByPath(ctx context.Context, path string) (*eav.Entity, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE path = ?`, path)
	e, err := scanEntity(row)
	if err != nil {
		return nil, classify("sqlitestore: get entity "+path, err)
	}
	return e, nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	return s.atomic(ctx, func(tx *Store) error {
		if err := ftsDeleteEntity(ctx, tx.q, id); err != nil {
			return err
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
		if err != nil {
			return classify("sqlitestore: delete entity "+id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("sqlitestore: delete entity", id)
		}
		return nil
	})
}

func (s *Store) ListEntities(ctx context.Context, f eav.EntityFilter) ([]eav.Entity, error) {
	where, args := entityWhere(f)
	order := "path, id"
	switch f.Sort {
	case "title":
		order = "title, path, id"
	case "updated":
		order = "updated_at DESC, path, id"
	}
	limit := -1
	if f.Limit > 0 {
		limit = f.Limit
	}
	args = append(args, limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities`+where+
		` ORDER BY `+order+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, classify("sqlitestore: list entities", err)
	}
	defer rows.Close()

	var out []eav.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, classify("sqlitestore: list entities", err)
		}
		out = append(out, *e)
	}
	return out, classify("sqlitestore: list entities", rows.Err())
}

func (s *Store) CountEntities(ctx context.Context, f eav.EntityFilter) (int, error) {
	where, args := entityWhere(f)
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT count(*) FROM entities`+where, args...).Scan(&n)
	return n, classify("sqlitestore: count entities", err)
}

func entityWhere(f eav.EntityFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.PathPrefix != "" {
		conds = append(conds, "substr(path, 1, length(?)) = ?")
		args = append(args, f.PathPrefix, f.PathPrefix)
	}
	if f.Title != "" {
		conds = append(conds, "title = ?")
		args = append(args, f.Title)
	}
	if f.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM entity_tags t WHERE t.entity_id = entities.id
			AND (t.tag = ? OR substr(t.tag, 1, length(?) + 1) = ? || '/'))`)
		args = append(args, f.Tag, f.Tag, f.Tag)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(sc scanner) (*eav.Entity, error) {
	var (
		e                eav.Entity
		typ              string
		path             sql.NullString
		hash             blockhash.Hash
		created, updated string
	)
	if err := sc.Scan(&e.ID, &typ, &path, &e.Title, &hash, &e.Version, &created, &updated); err != nil {
		return nil, err
	}
	e.Type = eav.EntityType(typ)
	e.Path = path.String
	e.ContentHash = hash
	var err error
	if e.CreatedAt, err = eav.ParseTime(created); err != nil {
		return nil, apperr.New(apperr.KindCorruption, "sqlitestore: scan entity", fmt.Errorf("created_at: %w", err))
	}
	if e.UpdatedAt, err = eav.ParseTime(updated); err != nil {
		return nil, apperr.New(apperr.KindCorruption, "sqlitestore: scan entity", fmt.Errorf("updated_at: %w", err))
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
