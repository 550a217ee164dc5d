package eav

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/models"
)

// Records maps NoteRecords onto the composite store.
type Records struct {
	store Store
}

// NewRecords returns a record view over s.
func NewRecords(s Store) *Records {
	return &Records{store: s}
}

// UpsertRecord creates or updates the note entity for rec.Path together with
// its title, tags, links, frontmatter properties and embedding, in one transaction.
func (r *Records) UpsertRecord(ctx context.Context, rec models.NoteRecord) (*Entity, error) {
	if rec.Path == "" {
		return nil, apperr.Errorf(apperr.KindInvalid, "eav: upsert record", "empty path")
	}
	var out *Entity
	err := r.store.Update(ctx, func(tx Store) error {
		e, err := upsertNoteEntity(ctx, tx, rec)
		if err != nil {
			return err
		}

		props := make([]Property, 0, len(rec.Properties))
		for k, v := range rec.Properties {
			props = append(props, Property{EntityID: e.ID, Namespace: NamespaceFrontmatter, Key: k, Value: ValueOf(v)})
		}
		if err := tx.ReplaceProperties(ctx, e.ID, NamespaceFrontmatter, props); err != nil {
			return err
		}
		if err := tx.ReplaceTags(ctx, e.ID, rec.Tags); err != nil {
			return err
		}

		rels := make([]Relation, 0, len(rec.Links))
		for i, target := range rec.Links {
			to, err := ResolveTarget(ctx, tx, target)
			if err != nil {
				return err
			}
			rels = append(rels, Relation{From: e.ID, To: to, Type: RelationWikilink, Target: target, Position: i})
		}
		if err := tx.ReplaceRelations(ctx, e.ID, rels); err != nil {
			return err
		}
		if _, err := tx.ResolveDangling(ctx, e.ID, LinkNames(e.Path, e.Title)); err != nil {
			return err
		}

		if rec.HasEmbedding() {
			if err := tx.SetEmbedding(ctx, e.ID, rec.Embedding); err != nil {
				return err
			}
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("eav: upsert record %s: %w", rec.Path, err)
	}
	return out, nil
}

// GetRecord assembles the record for path.
func (r *Records) GetRecord(ctx context.Context, path string) (*models.NoteRecord, error) {
	e, err := r.store.GetEntityByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.record(ctx, e)
}

// ListRecords returns records for every note entity matching f.
func (r *Records) ListRecords(ctx context.Context, f EntityFilter) ([]models.NoteRecord, error) {
	f.Type = EntityNote
	ents, err := r.store.ListEntities(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.NoteRecord, 0, len(ents))
	for i := range ents {
		rec, err := r.record(ctx, &ents[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// SearchRecords returns the records of notes matching query, one per note, in
// backend order.
func (r *Records) SearchRecords(ctx context.Context, query string, limit int) ([]models.NoteRecord, error) {
	hits, err := r.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(hits))
	var out []models.NoteRecord
	for _, h := range hits {
		if _, ok := seen[h.EntityID]; ok {
			continue
		}
		seen[h.EntityID] = struct{}{}
		e, err := r.store.GetEntity(ctx, h.EntityID)
		if err != nil {
			return nil, err
		}
		rec, err := r.record(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *Records) record(ctx context.Context, e *Entity) (*models.NoteRecord, error) {
	rec := &models.NoteRecord{
		Path:        e.Path,
		ContentHash: e.ContentHash,
		Title:       e.Title,
		UpdatedAt:   e.UpdatedAt,
	}

	tags, err := r.store.TagsFor(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags

	rels, err := r.store.Outgoing(ctx, e.ID, "")
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		rec.Links = append(rec.Links, rel.Target)
	}

	props, err := r.store.ListProperties(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		if p.Namespace != NamespaceFrontmatter {
			continue
		}
		if rec.Properties == nil {
			rec.Properties = make(map[string]any)
		}
		rec.Properties[p.Key] = p.Value.Any()
	}

	vec, err := r.store.Embedding(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	rec.Embedding = vec
	return rec, nil
}

// upsertNoteEntity creates the note entity for path or updates the existing
// one, keeping its ID.
func upsertNoteEntity(ctx context.Context, tx Store, rec models.NoteRecord) (*Entity, error) {
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	e, err := tx.GetEntityByPath(ctx, rec.Path)
	switch {
	case err == nil:
		e.Title = rec.Title
		e.ContentHash = rec.ContentHash
		e.UpdatedAt = updated
		if err := tx.UpdateEntity(ctx, e); err != nil {
			return nil, err
		}
		return e, nil
	case apperr.IsNotFound(err):
		e = &Entity{Type: EntityNote, Path: rec.Path, Title: rec.Title, ContentHash: rec.ContentHash, UpdatedAt: updated}
		if err := tx.CreateEntity(ctx, e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, err
	}
}
