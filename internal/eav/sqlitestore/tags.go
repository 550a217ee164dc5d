package sqlitestore

import (
	"context"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) AttachTag(ctx context.Context, entityID, name string) error {
	return s.atomic(ctx, func(tx *Store) error {
		return tx.attachTag(ctx, entityID, name)
	})
}

// attachTag registers name with its ancestors and appends it to the entity's
// tag list.
func (s *Store) attachTag(ctx context.Context, entityID, name string) error {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return apperr.Errorf(apperr.KindInvalid, "sqlitestore: attach tag", "empty tag")
	}
	for _, t := range eav.TagLineage(name) {
		if _, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name, parent) VALUES (?, ?)`,
			t, eav.TagParent(t)); err != nil {
			return classify("sqlitestore: register tag", err)
		}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO entity_tags (entity_id, tag, position)
		VALUES (?, ?, (SELECT coalesce(max(position), -1) + 1 FROM entity_tags WHERE entity_id = ?))
	`, entityID, name, entityID)
	return classify("sqlitestore: attach tag "+name, err)
}

func (s *Store) DetachTag(ctx context.Context, entityID, name string) error {
	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id = ? AND tag = ?`, entityID, name)
		return classify("sqlitestore: detach tag", err)
	})
}

func (s *Store) ReplaceTags(ctx context.Context, entityID string, names []string) error {
	return s.atomic(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id = ?`, entityID); err != nil {
			return classify("sqlitestore: replace tags", err)
		}
		for _, n := range names {
			if strings.Trim(strings.TrimSpace(n), "/") == "" {
				continue
			}
			if err := tx.attachTag(ctx, entityID, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) EntitiesByTag(ctx context.Context, name string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT entity_id FROM entity_tags
		WHERE tag = ? OR substr(tag, 1, length(?) + 1) = ? || '/'
		ORDER BY entity_id
	`, name, name, name)
	if err != nil {
		return nil, classify("sqlitestore: entities by tag", err)
	}
	return scanIDs(rows, "sqlitestore: entities by tag")
}

// ListTags returns every registered tag with the number of entities tagged
// with exactly that name.
func (s *Store) ListTags(ctx context.Context) ([]eav.Tag, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT t.name, t.parent, (SELECT count(*) FROM entity_tags et WHERE et.tag = t.name)
		FROM tags t
		ORDER BY t.name
	`)
	if err != nil {
		return nil, classify("sqlitestore: list tags", err)
	}
	defer rows.Close()

	var out []eav.Tag
	for rows.Next() {
		var t eav.Tag
		if err := rows.Scan(&t.Name, &t.Parent, &t.Count); err != nil {
			return nil, classify("sqlitestore: list tags", err)
		}
		out = append(out, t)
	}
	return out, classify("sqlitestore: list tags", rows.Err())
}

func (s *Store) TagsFor(ctx context.Context, entityID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT tag FROM entity_tags WHERE entity_id = ? ORDER BY position, tag`, entityID)
	if err != nil {
		return nil, classify("sqlitestore: tags for", err)
	}
	return scanIDs(rows, "sqlitestore: tags for")
}
