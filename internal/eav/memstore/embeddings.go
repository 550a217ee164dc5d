package memstore

import (
	"context"
	"slices"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
)

func (s *Store) SetEmbedding(ctx context.Context, entityID string, vec []float32) error {
	return s.atomic(ctx, func(tx *Store) error {
		if _, ok := tx.current.entities[entityID]; !ok {
			return apperr.NotFound("memstore: set embedding", entityID)
		}
		tx.current.embeddings[entityID] = nonNil(vec)
		return nil
	})
}

func (s *Store) Embedding(_ context.Context, entityID string) ([]float32, error) {
	vec, ok := s.snapshot().embeddings[entityID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(vec), nil
}

func (s *Store) SetBlockEmbedding(ctx context.Context, hash blockhash.Hash, vec []float32) error {
	return s.atomic(ctx, func(tx *Store) error {
		tx.current.blockEmb[hash] = nonNil(vec)
		return nil
	})
}

func (s *Store) BlockEmbedding(_ context.Context, hash blockhash.Hash) ([]float32, bool, error) {
	vec, ok := s.snapshot().blockEmb[hash]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(vec), true, nil
}

func nonNil(vec []float32) []float32 {
	if vec == nil {
		return []float32{}
	}
	return slices.Clone(vec)
}
