// Package noteservice coordinates the vault, ingestion, the store and the
// query pipeline for the front ends.
package noteservice

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/blockhash"
	"github.com/starford/kiln/internal/changetree"
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/ingest"
	"github.com/starford/kiln/internal/parser"
	"github.com/starford/kiln/internal/query"
	"github.com/starford/kiln/internal/query/render"
	"github.com/starford/kiln/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string                `json:"path"`
	Title       string                `json:"title"`
	Content     string                `json:"content"`
	ContentHash blockhash.Hash        `json:"content_hash"`
	Tags        []string              `json:"tags"`
	Links       []string              `json:"links"`
	Frontmatter map[string]any        `json:"frontmatter,omitempty"`
	Backlinks   []string              `json:"backlinks"`
	Changes     *changetree.ChangeSet `json:"changes,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	ContentHash blockhash.Hash `json:"content_hash"`
	Tags        []string       `json:"tags"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// LinkItem is one end of a link.
type LinkItem struct {
	Path     string `json:"path,omitempty"`
	Title    string `json:"title,omitempty"`
	Target   string `json:"target"`
	Resolved bool   `json:"resolved"`
}

// GraphNode is a note in the link graph.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// GraphLink is a resolved link between two notes, by path.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Service coordinates vault, store and query operations.
type Service struct {
	vault    storage.Provider
	store    eav.Store
	ing      *ingest.Ingestor
	pipeline *query.Pipeline
}

// NewService creates a new note service. Writes go to the vault and are
// ingested immediately; queries run through pipeline against the ingestor's store.
func NewService(vault storage.Provider, ing *ingest.Ingestor, pipeline *query.Pipeline) *Service {
	return &Service{vault: vault, store: ing.Store(), ing: ing, pipeline: pipeline}
}

// Store returns the backing store.
func (s *Service) Store() eav.Store { return s.store }

// GetNote reads a note from the vault, parses it, and enriches it with backlinks.
func (s *Service) GetNote(ctx context.Context, path string) (*NoteDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(ctx, path, data)
}

// CreateNote writes a new note and ingests it.
func (s *Service) CreateNote(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.vault.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if s.vault.Ignored(path) {
		return nil, apperr.Errorf(apperr.KindInvalid, "noteservice: create", "path %s is ignored", path)
	}
	if err := s.vault.Write(path, content); err != nil {
		return nil, err
	}
	return s.ingest(ctx, path, content)
}

// UpdateNote writes updated content with optimistic concurrency: a non-empty
// ifMatch must equal the hex document hash of the current content.
func (s *Service) UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != blockhash.SumDocument(existing).Hex() {
		return nil, apperr.ErrConflict
	}
	if err := s.vault.Write(path, content); err != nil {
		return nil, err
	}
	return s.ingest(ctx, path, content)
}

// DeleteNote removes a note from the vault and the store.
func (s *Service) DeleteNote(ctx context.Context, path string) error {
	if err := s.vault.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.ing.Delete(ctx, path)
}

// ListNotes returns paginated notes with an optional tag filter. sort is
// "path" (default), "title" or "updated_at".
func (s *Service) ListNotes(ctx context.Context, limit, offset int, tag, sort string) ([]NoteListItem, int, error) {
	if sort == "updated_at" {
		sort = "updated"
	}
	f := eav.EntityFilter{Type: eav.EntityNote, Tag: tag, Sort: sort}
	total, err := s.store.CountEntities(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	f.Limit, f.Offset = limit, offset
	ents, err := s.store.ListEntities(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(ents))
	for i, e := range ents {
		tags, err := s.store.TagsFor(ctx, e.ID)
		if err != nil {
			return nil, 0, err
		}
		items[i] = NoteListItem{
			Path:        e.Path,
			Title:       e.Title,
			ContentHash: e.ContentHash,
			Tags:        nonNilSlice(tags),
			UpdatedAt:   e.UpdatedAt,
		}
	}
	return items, total, nil
}

// Blocks returns the stored blocks of the note at path.
func (s *Service) Blocks(ctx context.Context, path string) ([]eav.Block, error) {
	e, err := s.store.GetEntityByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	blocks, err := s.store.Blocks(ctx, e.ID)
	return nonNilSlice(blocks), err
}

// Search delegates full-text search to the store.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]eav.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	hits, err := s.store.Search(ctx, q, limit)
	return nonNilSlice(hits), err
}

// Graph returns every note and every resolved link between notes.
func (s *Service) Graph(ctx context.Context) ([]GraphNode, []GraphLink, error) {
	ents, err := s.store.ListEntities(ctx, eav.EntityFilter{Type: eav.EntityNote})
	if err != nil {
		return nil, nil, err
	}
	paths := make(map[string]string, len(ents))
	nodes := make([]GraphNode, 0, len(ents))
	for _, e := range ents {
		paths[e.ID] = e.Path
		nodes = append(nodes, GraphNode{ID: e.Path, Title: e.Title})
	}
	rels, err := s.store.AllRelations(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	links := make([]GraphLink, 0, len(rels))
	for _, r := range rels {
		from, okFrom := paths[r.From]
		to, okTo := paths[r.To]
		if !okFrom || !okTo {
			continue
		}
		links = append(links, GraphLink{Source: from, Target: to, Type: r.Type})
	}
	return nodes, links, nil
}

// Outlinks lists the links written in the note at path, in document order.
func (s *Service) Outlinks(ctx context.Context, path string) ([]LinkItem, error) {
	e, err := s.store.GetEntityByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	rels, err := s.store.Outgoing(ctx, e.ID, "")
	if err != nil {
		return nil, err
	}
	out := make([]LinkItem, 0, len(rels))
	for _, r := range rels {
		item := LinkItem{Target: r.Target, Resolved: r.Resolved()}
		if r.Resolved() {
			if to, err := s.store.GetEntity(ctx, r.To); err == nil {
				item.Path, item.Title = to.Path, to.Title
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Backlinks returns the paths of notes linking to the note at path.
func (s *Service) Backlinks(ctx context.Context, path string) ([]string, error) {
	e, err := s.store.GetEntityByPath(ctx, path)
	if apperr.IsNotFound(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	rels, err := s.store.Incoming(ctx, e.ID, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rels))
	out := make([]string, 0, len(rels))
	for _, r := range rels {
		if _, ok := seen[r.From]; ok {
			continue
		}
		seen[r.From] = struct{}{}
		from, err := s.store.GetEntity(ctx, r.From)
		if err != nil {
			return nil, err
		}
		out = append(out, from.Path)
	}
	return out, nil
}

// Tags lists the tag taxonomy with usage counts.
func (s *Service) Tags(ctx context.Context) ([]eav.Tag, error) {
	tags, err := s.store.ListTags(ctx)
	return nonNilSlice(tags), err
}

// Query runs text through the pipeline against the store.
func (s *Service) Query(ctx context.Context, text string, params map[string]any) (*query.Result, error) {
	return s.pipeline.Run(ctx, text, s.store, params)
}

// Explain renders text without executing it.
func (s *Service) Explain(text string) (*render.RenderedQuery, error) {
	return s.pipeline.Execute(text)
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.vault.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Service) ingest(ctx context.Context, path string, content []byte) (*NoteDetail, error) {
	res, err := s.ing.Ingest(ctx, path, content)
	if err != nil {
		return nil, err
	}
	detail, err := s.buildNoteDetail(ctx, path, content)
	if err != nil {
		return nil, err
	}
	detail.Changes = &res.Changes
	return detail, nil
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(ctx context.Context, path string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.Backlinks(ctx, path)
	if err != nil {
		return nil, err
	}
	updated := time.Now().UTC()
	if e, err := s.store.GetEntityByPath(ctx, path); err == nil {
		updated = e.UpdatedAt
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		ContentHash: blockhash.SumDocument(data),
		Tags:        nonNilSlice(res.Tags),
		Links:       nonNilSlice(res.Targets()),
		Frontmatter: res.Frontmatter,
		Backlinks:   bl,
		UpdatedAt:   updated,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
