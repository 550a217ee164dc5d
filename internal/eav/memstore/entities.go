package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) CreateEntity(ctx context.Context, e *eav.Entity) error {
	if e.Type == "" {
		return apperr.Errorf(apperr.KindInvalid, "memstore: create entity", "missing type")
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
		st := tx.current
		if _, dup := st.entities[e.ID]; dup {
			return apperr.Errorf(apperr.KindAlreadyExists, "memstore: create entity", "id %s", e.ID)
		}
		if e.Path != "" {
			if _, dup := st.byPath[e.Path]; dup {
				return apperr.Errorf(apperr.KindAlreadyExists, "memstore: create entity", "path %s", e.Path)
			}
			st.byPath[e.Path] = e.ID
		}
		st.entities[e.ID] = normalized(*e)
		return nil
	})
}

func (s *Store) UpdateEntity(ctx context.Context, e *eav.Entity) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		old, ok := st.entities[e.ID]
		if !ok {
			return apperr.NotFound("memstore: update entity", e.ID)
		}
		if e.Path != old.Path && e.Path != "" {
			if _, dup := st.byPath[e.Path]; dup {
				return apperr.Errorf(apperr.KindAlreadyExists, "memstore: update entity", "path %s", e.Path)
			}
		}
		delete(st.byPath, old.Path)
		if e.Path != "" {
			st.byPath[e.Path] = e.ID
		}
		e.Version = old.Version + 1
		e.CreatedAt = old.CreatedAt
		st.entities[e.ID] = normalized(*e)
		return nil
	})
}

func (s *Store) GetEntity(_ context.Context, id string) (*eav.Entity, error) {
	e, ok := s.snapshot().entities[id]
	if !ok {
		return nil, apperr.NotFound("memstore: get entity", id)
	}
	return &e, nil
}

func (s *Store) GetEntityByPath(_ context.Context, path string) (*eav.Entity, error) {
	st := s.snapshot()
	id, ok := st.byPath[path]
	if !ok {
		return nil, apperr.NotFound("memstore: get entity", path)
	}
	e := st.entities[id]
	return &e, nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		e, ok := st.entities[id]
		if !ok {
			return apperr.NotFound("memstore: delete entity", id)
		}
		delete(st.entities, id)
		delete(st.byPath, e.Path)
		delete(st.props, id)
		delete(st.blocks, id)
		delete(st.entityTags, id)
		delete(st.embeddings, id)
		for rid, r := range st.relations {
			switch {
			case r.From == id:
				delete(st.relations, rid)
			case r.To == id:
				r.To = ""
				st.relations[rid] = r
			}
		}
		return nil
	})
}

func (s *Store) ListEntities(_ context.Context, f eav.EntityFilter) ([]eav.Entity, error) {
	st := s.snapshot()
	out := st.filterEntities(f)
	switch f.Sort {
	case "title":
		slices.SortFunc(out, func(a, b eav.Entity) int {
			return cmp.Or(strings.Compare(a.Title, b.Title), comparePath(a, b), strings.Compare(a.ID, b.ID))
		})
	case "updated":
		slices.SortFunc(out, func(a, b eav.Entity) int {
			return cmp.Or(strings.Compare(eav.FormatTime(b.UpdatedAt), eav.FormatTime(a.UpdatedAt)),
				comparePath(a, b), strings.Compare(a.ID, b.ID))
		})
	default:
		slices.SortFunc(out, func(a, b eav.Entity) int {
			return cmp.Or(comparePath(a, b), strings.Compare(a.ID, b.ID))
		})
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *Store) CountEntities(_ context.Context, f eav.EntityFilter) (int, error) {
	return len(s.snapshot().filterEntities(f)), nil
}

func (st *state) filterEntities(f eav.EntityFilter) []eav.Entity {
	var out []eav.Entity
	for _, e := range st.entities {
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.PathPrefix != "" && !strings.HasPrefix(e.Path, f.PathPrefix) {
			continue
		}
		if f.Title != "" && e.Title != f.Title {
			continue
		}
		if f.Tag != "" && !st.hasTag(e.ID, f.Tag) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// comparePath orders entities without a path first, as SQL orders NULL.
func comparePath(a, b eav.Entity) int {
	switch {
	case a.Path == "" && b.Path == "":
		return 0
	case a.Path == "":
		return -1
	case b.Path == "":
		return 1
	}
	return strings.Compare(a.Path, b.Path)
}

// normalized stores timestamps in UTC at the precision TimeLayout keeps.
func normalized(e eav.Entity) eav.Entity {
	e.CreatedAt = e.CreatedAt.UTC().Round(0)
	e.UpdatedAt = e.UpdatedAt.UTC().Round(0)
	return e
}
