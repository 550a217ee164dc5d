package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/eav"
)

func (s *Store) UpsertBlock(ctx context.Context, b eav.Block) error {
	return s.atomic(ctx, func(tx *Store) error {
		st := tx.current
		if _, ok := st.entities[b.EntityID]; !ok {
			return apperr.NotFound("memstore: upsert block", b.EntityID)
		}
		m := st.blocks[b.EntityID]
		if m == nil {
			m = make(map[int]eav.Block)
			st.blocks[b.EntityID] = m
		}
		m[b.Position] = b
		return nil
	})
}

func (s *Store) Blocks(_ context.Context, entityID string) ([]eav.Block, error) {
	m := s.snapshot().blocks[entityID]
	var out []eav.Block
	for _, pos := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[pos])
	}
	return out, nil
}

func (s *Store) BlockByHash(_ context.Context, hash blockhash.Hash) (*eav.Block, error) {
	var best *eav.Block
	for _, m := range s.snapshot().blocks {
		for _, b := range m {
			if b.Hash != hash {
				continue
			}
			if best == nil || cmp.Or(strings.Compare(b.EntityID, best.EntityID), cmp.Compare(b.Position, best.Position)) < 0 {
				best = &b
			}
		}
	}
	if best == nil {
		return nil, apperr.NotFound("memstore: block", hash.Short())
	}
	return best, nil
}

func (s *Store) TruncateBlocks(ctx context.Context, entityID string, from int) error {
	return s.atomic(ctx, func(tx *Store) error {
		for pos := range tx.current.blocks[entityID] {
			if pos >= from {
				delete(tx.current.blocks[entityID], pos)
			}
		}
		return nil
	})
}
