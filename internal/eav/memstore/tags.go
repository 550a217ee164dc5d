package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) AttachTag(ctx context.Context, entityID, name string) error {
	return s.atomic(ctx, func(tx *Store) error {
		return tx.current.attachTag(entityID, name)
	})
}

func (st *state) attachTag(entityID, name string) error {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return apperr.Errorf(apperr.KindInvalid, "memstore: attach tag", "empty tag")
	}
	if _, ok := st.entities[entityID]; !ok {
		return apperr.NotFound("memstore: attach tag", entityID)
	}
	for _, t := range eav.TagLineage(name) {
		if _, ok := st.tags[t]; !ok {
			st.tags[t] = eav.TagParent(t)
		}
	}
	if !slices.Contains(st.entityTags[entityID], name) {
		st.entityTags[entityID] = append(st.entityTags[entityID], name)
	}
	return nil
}

func (s *Store) DetachTag(ctx context.Context, entityID, name string) error {
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		st.entityTags[entityID] = slices.DeleteFunc(st.entityTags[entityID], func(t string) bool { return t == name })
		return nil
	})
}

func (s *Store) ReplaceTags(ctx context.Context, entityID string, names []string) error {
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		delete(st.entityTags, entityID)
		for _, n := range names {
			if strings.Trim(strings.TrimSpace(n), "/") == "" {
				continue
			}
			if err := st.attachTag(entityID, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) EntitiesByTag(_ context.Context, name string) ([]string, error) {
	st := s.snapshot()
	var out []string
	for id := range st.entityTags {
		if st.hasTag(id, name) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ListTags(_ context.Context) ([]eav.Tag, error) {
	st := s.snapshot()
	counts := make(map[string]int)
	for _, ts := range st.entityTags {
		for _, t := range ts {
			counts[t]++
		}
	}
	var out []eav.Tag
	for name, parent := range st.tags {
		out = append(out, eav.Tag{Name: name, Parent: parent, Count: counts[name]})
	}
	slices.SortFunc(out, func(a, b eav.Tag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) TagsFor(_ context.Context, entityID string) ([]string, error) {
	return slices.Clone(s.snapshot().entityTags[entityID]), nil
}

// hasTag reports whether entityID carries name or a descendant of name.
func (st *state) hasTag(entityID, name string) bool {
	for _, t := range st.entityTags[entityID] {
		if matchesTag(t, name) {
			return true
		}
	}
	return false
}

func matchesTag(tag, name string) bool {
	return tag == name || strings.HasPrefix(tag, name+"/")
}
