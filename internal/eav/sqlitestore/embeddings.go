package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
)

func (s *Store) SetEmbedding(ctx context.Context, entityID string, vec []float32) error {
	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO embeddings (entity_id, vector) VALUES (?, ?)
			ON CONFLICT(entity_id) DO UPDATE SET vector = excluded.vector
		`, entityID, encodeVector(vec))
		return classify("sqlitestore: set embedding", err)
	})
}

func (s *Store) Embedding(ctx context.Context, entityID string) ([]float32, error) {
	var raw []byte
	err := s.q.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE entity_id = ?`, entityID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("sqlitestore: embedding", err)
	}
	return decodeVector(raw)
}

func (s *Store) SetBlockEmbedding(ctx context.Context, hash blockhash.Hash, vec []float32) error {
	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO block_embeddings (hash, vector) VALUES (?, ?)
			ON CONFLICT(hash) DO UPDATE SET vector = excluded.vector
		`, hash, encodeVector(vec))
		return classify("sqlitestore: set block embedding", err)
	})
}

func (s *Store) BlockEmbedding(ctx context.Context, hash blockhash.Hash) ([]float32, bool, error) {
	var raw []byte
	err := s.q.QueryRowContext(ctx, `SELECT vector FROM block_embeddings WHERE hash = ?`, hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("sqlitestore: block embedding", err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// encodeVector stores float32s little-endian, four bytes each.
func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, apperr.Errorf(apperr.KindCorruption, "sqlitestore: decode vector", "length %d is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
