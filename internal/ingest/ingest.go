// Package ingest keeps the store in step with the vault. Each document is
// parsed into blocks, diffed against its stored blocks with a change tree, and
// written in one transaction that touches only what changed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/changetree"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/metrics"
	"github.com/starford/kiln/internal/models"
	"github.com/starford/kiln/internal/parser"
)

// Event kinds passed to an EventFunc.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Event describes one store mutation made by ingestion.
type Event struct {
	Kind          string `json:"kind"`
	Path          string `json:"path"`
	ChangedBlocks int    `json:"changed_blocks"`
	TotalBlocks   int    `json:"total_blocks"`
}

// EventFunc is called after each committed mutation.
type EventFunc func(Event)

// Result is the outcome of ingesting one document.
type Result struct {
	Entity *eav.Entity
	// Created is set when the document had no entity before.
	Created bool
	// Unchanged is set when the document hash matched and nothing was written.
	Unchanged bool
	Changes   changetree.ChangeSet
}

// Ingestor writes parsed documents into a store.
type Ingestor struct {
	store    eav.Store
	hasher   blockhash.Hasher
	mode     changetree.DiffMode
	embedder Embedder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	onEvent  EventFunc
	now      func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithHasher replaces the block hasher.
func WithHasher(h blockhash.Hasher) Option {
	return func(i *Ingestor) { i.hasher = h }
}

// WithDiffMode selects how changed sections are compared.
func WithDiffMode(m changetree.DiffMode) Option {
	return func(i *Ingestor) { i.mode = m }
}

// WithEmbedder embeds changed blocks through e, using the store's block
// embedding cache.
func WithEmbedder(e Embedder) Option {
	return func(i *Ingestor) { i.embedder = e }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) { i.logger = l }
}

// WithEventFunc registers a callback for committed mutations.
func WithEventFunc(fn EventFunc) Option {
	return func(i *Ingestor) { i.onEvent = fn }
}

// New returns an Ingestor over store.
func New(store eav.Store, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:  store,
		hasher: blockhash.SHA256{},
		mode:   changetree.Positional,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Store returns the underlying store.
func (i *Ingestor) Store() eav.Store { return i.store }

// Ingest parses data as the document at path and brings the store up to date.
func (i *Ingestor) Ingest(ctx context.Context, path string, data []byte) (*Result, error) {
	res, err := i.ingest(ctx, path, data)
	if err != nil {
		i.metrics.NoteIngested("error", 0, 0)
		return nil, fmt.Errorf("ingest: %s: %w", path, err)
	}

	switch {
	case res.Unchanged:
		i.metrics.NoteIngested("unchanged", res.Changes.TotalBlocks, 0)
		return res, nil
	case res.Created:
		i.metrics.NoteIngested(EventCreated, res.Changes.TotalBlocks, res.Changes.ChangedBlocks)
	default:
		i.metrics.NoteIngested(EventUpdated, res.Changes.TotalBlocks, res.Changes.ChangedBlocks)
	}

	kind := EventUpdated
	if res.Created {
		kind = EventCreated
	}
	i.logger.Debug("ingest: indexed",
		slog.String("path", path),
		slog.String("op", kind),
		slog.Int("changed_blocks", res.Changes.ChangedBlocks),
		slog.Int("total_blocks", res.Changes.TotalBlocks))
	i.emit(Event{Kind: kind, Path: path, ChangedBlocks: res.Changes.ChangedBlocks, TotalBlocks: res.Changes.TotalBlocks})
	return res, nil
}

func (i *Ingestor) ingest(ctx context.Context, path string, data []byte) (*Result, error) {
	docHash := blockhash.SumDocument(data)

	existing, stored, err := readNote(ctx, i.store, path)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ContentHash == docHash {
		return &Result{Entity: existing, Unchanged: true, Changes: changetree.ChangeSet{TotalBlocks: len(stored)}}, nil
	}

	parsed, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	blocks := i.blocks(parsed.Blocks)
	changes := i.diff(stored, blocks)

	// Embedding runs outside the write lock against the snapshot above.
	vectors, err := i.embed(ctx, blocks, changes)
	if err != nil {
		return nil, err
	}

	rec := models.NoteRecord{
		Path:        path,
		ContentHash: docHash,
		Title:       parsed.Title,
		Tags:        parsed.Tags,
		Links:       parsed.Targets(),
		Properties:  parsed.Frontmatter,
		UpdatedAt:   i.now(),
	}

	var res *Result
	err = i.store.Update(ctx, func(tx eav.Store) error {
		// Another ingestion of path may have committed since the snapshot.
		cur, curBlocks, err := readNote(ctx, tx, path)
		if err != nil {
			return err
		}
		if cur != nil && cur.ContentHash == docHash {
			res = &Result{Entity: cur, Unchanged: true, Changes: changetree.ChangeSet{TotalBlocks: len(curBlocks)}}
			return nil
		}
		txChanges := changes
		if !slices.Equal(curBlocks, stored) {
			txChanges = i.diff(curBlocks, blocks)
		}

		e, err := eav.NewRecords(tx).UpsertRecord(ctx, rec)
		if err != nil {
			return err
		}
		for p := range blocks {
			blocks[p].EntityID = e.ID
		}
		if err := writeBlocks(ctx, tx, e.ID, curBlocks, blocks); err != nil {
			return err
		}
		for h, vec := range vectors {
			if err := tx.SetBlockEmbedding(ctx, h, vec); err != nil {
				return err
			}
		}
		res = &Result{Entity: e, Created: cur == nil, Changes: txChanges}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// readNote returns the entity stored for path and its blocks, or nil when the
// path has no entity.
func readNote(ctx context.Context, s eav.Store, path string) (*eav.Entity, []eav.Block, error) {
	e, err := s.GetEntityByPath(ctx, path)
	if apperr.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	blocks, err := s.Blocks(ctx, e.ID)
	if err != nil {
		return nil, nil, err
	}
	return e, blocks, nil
}

func (i *Ingestor) diff(stored, blocks []eav.Block) changetree.ChangeSet {
	start := time.Now()
	changes := changetree.Diff(changetree.Build(leaves(stored)), changetree.Build(leaves(blocks)), changetree.WithMode(i.mode))
	i.metrics.ObserveDiff(time.Since(start))
	return changes
}

// Delete removes the entity for path. A path with no entity is not an error.
func (i *Ingestor) Delete(ctx context.Context, path string) error {
	e, err := i.store.GetEntityByPath(ctx, path)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ingest: delete %s: %w", path, err)
	}
	if err := i.store.DeleteEntity(ctx, e.ID); err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("ingest: delete %s: %w", path, err)
	}
	i.metrics.NoteIngested(EventDeleted, 0, 0)
	i.logger.Debug("ingest: deleted", slog.String("path", path))
	i.emit(Event{Kind: EventDeleted, Path: path})
	return nil
}

// Hashes returns the stored document hash of every note, keyed by path.
func (i *Ingestor) Hashes(ctx context.Context) (map[string]blockhash.Hash, error) {
	ents, err := i.store.ListEntities(ctx, eav.EntityFilter{Type: eav.EntityNote})
	if err != nil {
		return nil, fmt.Errorf("ingest: list notes: %w", err)
	}
	out := make(map[string]blockhash.Hash, len(ents))
	for _, e := range ents {
		if e.Path != "" {
			out[e.Path] = e.ContentHash
		}
	}
	return out, nil
}

func (i *Ingestor) emit(ev Event) {
	if i.onEvent != nil {
		i.onEvent(ev)
	}
}

// blocks converts parsed blocks, rehashing them with the configured hasher.
func (i *Ingestor) blocks(parsed []parser.Block) []eav.Block {
	out := make([]eav.Block, len(parsed))
	for p, b := range parsed {
		out[p] = eav.Block{
			Position: b.Position,
			Parent:   b.Parent,
			Type:     b.Type,
			Content:  b.Content,
			Hash:     i.hasher.Hash(b.Type, []byte(b.Content)),
			Offset:   b.Offset,
			Level:    b.Level,
		}
	}
	return out
}

func leaves(blocks []eav.Block) []changetree.Leaf {
	out := make([]changetree.Leaf, len(blocks))
	for p, b := range blocks {
		out[p] = changetree.Leaf{Type: b.Type, Hash: b.Hash}
	}
	return out
}

// writeBlocks stores every block that differs from the stored one at its
// position and drops positions past the new end. Blocks whose content is
// unchanged are rewritten only when they moved within the file.
func writeBlocks(ctx context.Context, tx eav.Store, entityID string, stored, blocks []eav.Block) error {
	for p, b := range blocks {
		if p < len(stored) && stored[p] == b {
			continue
		}
		if err := tx.UpsertBlock(ctx, b); err != nil {
			return err
		}
	}
	if len(stored) > len(blocks) {
		return tx.TruncateBlocks(ctx, entityID, len(blocks))
	}
	return nil
}
