// Package memstore is the graph-native in-memory backend. Writes build a new
// state from a copy and publish it atomically, so readers always see a
// committed snapshot. Queries run from the plan attached to a Cypher rendering.
//
// Every write outside Update, even a single SetProperty or UpsertBlock, copies
// the whole state and costs O(corpus). Batch writes through Update, which
// copies once per transaction.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/query/render"
)

type propKey struct {
	namespace string
	key       string
}

type state struct {
	entities   map[string]eav.Entity
	byPath     map[string]string
	props      map[string]map[propKey]eav.PropertyValue
	relations  map[string]eav.Relation
	blocks     map[string]map[int]eav.Block
	tags       map[string]string
	entityTags map[string][]string
	embeddings map[string][]float32
	blockEmb   map[blockhash.Hash][]float32
}

func newState() *state {
	return &state{
		entities:   make(map[string]eav.Entity),
		byPath:     make(map[string]string),
		props:      make(map[string]map[propKey]eav.PropertyValue),
		relations:  make(map[string]eav.Relation),
		blocks:     make(map[string]map[int]eav.Block),
		tags:       make(map[string]string),
		entityTags: make(map[string][]string),
		embeddings: make(map[string][]float32),
		blockEmb:   make(map[blockhash.Hash][]float32),
	}
}

// clone copies every table. Values are immutable once stored, so inner maps
// and slices are copied one level deep.
func (st *state) clone() *state {
	out := &state{
		entities:   maps.Clone(st.entities),
		byPath:     maps.Clone(st.byPath),
		props:      make(map[string]map[propKey]eav.PropertyValue, len(st.props)),
		relations:  maps.Clone(st.relations),
		blocks:     make(map[string]map[int]eav.Block, len(st.blocks)),
		tags:       maps.Clone(st.tags),
		entityTags: make(map[string][]string, len(st.entityTags)),
		embeddings: maps.Clone(st.embeddings),
		blockEmb:   maps.Clone(st.blockEmb),
	}
	for id, p := range st.props {
		out.props[id] = maps.Clone(p)
	}
	for id, b := range st.blocks {
		out.blocks[id] = maps.Clone(b)
	}
	for id, t := range st.entityTags {
		out.entityTags[id] = slices.Clone(t)
	}
	return out
}

// Store is the in-memory backend.
type Store struct {
	mu      *sync.RWMutex
	writeMu *sync.Mutex
	current *state
	inTx    bool
}

var _ eav.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{mu: &sync.RWMutex{}, writeMu: &sync.Mutex{}, current: newState()}
}

// snapshot returns the committed state, or the working state inside Update.
func (s *Store) snapshot() *state {
	if s.inTx {
		return s.current
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Backend() string { return render.BackendGraph }

func (s *Store) Close() error {
	if s.inTx {
		return fmt.Errorf("memstore: close inside transaction")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(tx eav.Store) error) error {
	return s.atomic(ctx, func(tx *Store) error { return fn(tx) })
}

// atomic runs fn against a private copy of the state and publishes it when fn
// succeeds and ctx is still live. Outside Update the copy is taken per call.
func (s *Store) atomic(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore: begin tx: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := &Store{mu: &sync.RWMutex{}, writeMu: s.writeMu, current: s.snapshot().clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore: commit: %w", err)
	}
	s.mu.Lock()
	s.current = tx.current
	s.mu.Unlock()
	return nil
}
