package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) AddRelation(ctx context.Context, r *eav.Relation) error {
	return s.atomic(ctx, func(tx *Store) error {
		return tx.current.addRelation(r)
	})
}

func (st *state) addRelation(r *eav.Relation) error {
	if r.From == "" || r.Type == "" {
		return apperr.Errorf(apperr.KindInvalid, "memstore: add relation", "from and type are required")
	}
	if _, ok := st.entities[r.From]; !ok {
		return apperr.NotFound("memstore: add relation", r.From)
	}
	if r.To != "" {
		if _, ok := st.entities[r.To]; !ok {
			return apperr.NotFound("memstore: add relation", r.To)
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, dup := st.relations[r.ID]; dup {
		return apperr.Errorf(apperr.KindAlreadyExists, "memstore: add relation", "id %s", r.ID)
	}
	st.relations[r.ID] = *r
	return nil
}

func (s *Store) RemoveRelation(ctx context.Context, id string) error {
	return s.atomic(ctx, func(tx *Store) error {
		if _, ok := tx.current.relations[id]; !ok {
			return apperr.NotFound("memstore: remove relation", id)
		}
		delete(tx.current.relations, id)
		return nil
	})
}

func (s *Store) Outgoing(_ context.Context, entityID, relType string) ([]eav.Relation, error) {
	out := s.snapshot().selectRelations(func(r eav.Relation) bool {
		return r.From == entityID && (relType == "" || r.Type == relType)
	})
	slices.SortFunc(out, func(a, b eav.Relation) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) Incoming(_ context.Context, entityID, relType string) ([]eav.Relation, error) {
	out := s.snapshot().selectRelations(func(r eav.Relation) bool {
		return r.To == entityID && entityID != "" && (relType == "" || r.Type == relType)
	})
	slices.SortFunc(out, byOrigin)
	return out, nil
}

func (s *Store) AllRelations(_ context.Context, relType string) ([]eav.Relation, error) {
	out := s.snapshot().selectRelations(func(r eav.Relation) bool {
		return relType == "" || r.Type == relType
	})
	slices.SortFunc(out, byOrigin)
	return out, nil
}

func (s *Store) ReplaceRelations(ctx context.Context, entityID string, rels []eav.Relation) error {
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		for id, r := range st.relations {
			if r.From == entityID {
				delete(st.relations, id)
			}
		}
		for _, r := range rels {
			r.ID = ""
			r.From = entityID
			if err := st.addRelation(&r); err != nil {
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
	n := 0
	err := s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		if _, ok := st.entities[entityID]; !ok {
			return apperr.NotFound("memstore: resolve dangling", entityID)
		}
		for id, r := range st.relations {
			if r.To == "" && slices.Contains(names, r.Target) {
				r.To = entityID
				st.relations[id] = r
				n++
			}
		}
		return nil
	})
	return n, err
}

func (st *state) selectRelations(keep func(eav.Relation) bool) []eav.Relation {
	var out []eav.Relation
	for _, r := range st.relations {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func byOrigin(a, b eav.Relation) int {
	return cmp.Or(strings.Compare(a.From, b.From), cmp.Compare(a.Position, b.Position), strings.Compare(a.ID, b.ID))
}
