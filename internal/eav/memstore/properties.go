package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) SetProperty(ctx context.Context, p eav.Property) error {
	return s.atomic(ctx, func(tx *Store) error {
		return tx.current.setProperty(p)
	})
}

func (st *state) setProperty(p eav.Property) error {
	if p.Namespace == "" || p.Key == "" {
		return apperr.Errorf(apperr.KindInvalid, "memstore: set property", "namespace and key are required")
	}
	if _, ok := st.entities[p.EntityID]; !ok {
		return apperr.NotFound("memstore: set property", p.EntityID)
	}
	m := st.props[p.EntityID]
	if m == nil {
		m = make(map[propKey]eav.PropertyValue)
		st.props[p.EntityID] = m
	}
	m[propKey{p.Namespace, p.Key}] = p.Value
	return nil
}

func (s *Store) GetProperty(_ context.Context, entityID, namespace, key string) (*eav.Property, error) {
	v, ok := s.snapshot().props[entityID][propKey{namespace, key}]
	if !ok {
		return nil, apperr.NotFound("memstore: get property", namespace+"."+key)
	}
	return &eav.Property{EntityID: entityID, Namespace: namespace, Key: key, Value: v}, nil
}

func (s *Store) DeleteProperty(ctx context.Context, entityID, namespace, key string) error {
	return s.atomic(ctx, func(tx *Store) error {
		delete(tx.current.props[entityID], propKey{namespace, key})
		return nil
	})
}

func (s *Store) ListProperties(_ context.Context, entityID string) ([]eav.Property, error) {
	var out []eav.Property
	for k, v := range s.snapshot().props[entityID] {
		out = append(out, eav.Property{EntityID: entityID, Namespace: k.namespace, Key: k.key, Value: v})
	}
	slices.SortFunc(out, func(a, b eav.Property) int {
		return cmp.Or(strings.Compare(a.Namespace, b.Namespace), strings.Compare(a.Key, b.Key))
	})
	return out, nil
}

func (s *Store) FindByProperty(_ context.Context, namespace, key string, value eav.PropertyValue) ([]string, error) {
	var out []string
	for id, m := range s.snapshot().props {
		if v, ok := m[propKey{namespace, key}]; ok && v == value {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ReplaceProperties(ctx context.Context, entityID, namespace string, props []eav.Property) error {
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		for k := range st.props[entityID] {
			if k.namespace == namespace {
				delete(st.props[entityID], k)
			}
		}
		for _, p := range props {
			p.EntityID = entityID
			p.Namespace = namespace
			if err := st.setProperty(p); err != nil {
				return err
			}
		}
		return nil
	})
}
