package sqlitestore

import (
	"context"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) SetProperty(ctx context.Context, p eav.Property) error {
	return s.atomic(ctx, func(tx *Store) error {
		return tx.setProperty(ctx, p)
	})
}

func (s *Store) setProperty(ctx context.Context, p eav.Property) error {
	if p.Namespace == "" || p.Key == "" {
		return apperr.Errorf(apperr.KindInvalid, "sqlitestore: set property", "namespace and key are required")
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO properties (entity_id, namespace, key, value, value_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, namespace, key) DO UPDATE SET
			value      = excluded.value,
			value_type = excluded.value_type
	`, p.EntityID, p.Namespace, p.Key, p.Value.Raw, string(p.Value.Type))
	return classify("sqlitestore: set property "+p.Namespace+"."+p.Key, err)
}

func (s *Store) GetProperty(ctx context.Context, entityID, namespace, key string) (*eav.Property, error) {
	p := eav.Property{EntityID: entityID, Namespace: namespace, Key: key}
	var typ string
	err := s.q.QueryRowContext(ctx, `
		SELECT value, value_type FROM properties
		WHERE entity_id = ? AND namespace = ? AND key = ?
	`, entityID, namespace, key).Scan(&p.Value.Raw, &typ)
	if err != nil {
		return nil, classify("sqlitestore: get property "+namespace+"."+key, err)
	}
	p.Value.Type = eav.ValueType(typ)
	return &p, nil
}

// DeleteProperty is a no-op when the property does not exist.
func (s *Store) DeleteProperty(ctx context.Context, entityID, namespace, key string) error {
	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx, `DELETE FROM properties WHERE entity_id = ? AND namespace = ? AND key = ?`,
			entityID, namespace, key)
		return classify("sqlitestore: delete property", err)
	})
}

func (s *Store) ListProperties(ctx context.Context, entityID string) ([]eav.Property, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT namespace, key, value, value_type FROM properties
		WHERE entity_id = ?
		ORDER BY namespace, key
	`, entityID)
	if err != nil {
		return nil, classify("sqlitestore: list properties", err)
	}
	defer rows.Close()

	var out []eav.Property
	for rows.Next() {
		p := eav.Property{EntityID: entityID}
		var typ string
		if err := rows.Scan(&p.Namespace, &p.Key, &p.Value.Raw, &typ); err != nil {
			return nil, classify("sqlitestore: list properties", err)
		}
		p.Value.Type = eav.ValueType(typ)
		out = append(out, p)
	}
	return out, classify("sqlitestore: list properties", rows.Err())
}

func (s *Store) FindByProperty(ctx context.Context, namespace, key string, value eav.PropertyValue) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT entity_id FROM properties
		WHERE namespace = ? AND key = ? AND value = ? AND value_type = ?
		ORDER BY entity_id
	`, namespace, key, value.Raw, string(value.Type))
	if err != nil {
		return nil, classify("sqlitestore: find by property", err)
	}
	return scanIDs(rows, "sqlitestore: find by property")
}

func (s *Store) ReplaceProperties(ctx context.Context, entityID, namespace string, props []eav.Property) error {
	return s.atomic(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM properties WHERE entity_id = ? AND namespace = ?`,
			entityID, namespace); err != nil {
			return classify("sqlitestore: replace properties", err)
		}
		for _, p := range props {
			p.EntityID = entityID
			p.Namespace = namespace
			if err := tx.setProperty(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
