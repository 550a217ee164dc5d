// Package models defines the record types exchanged with front ends and the
// enrichment collaborator.
package models

import (
	"time"

	"github.com/starford/kiln/internal/blockhash"
)

// NoteRecord is the record contract with the enrichment/embedding collaborator.
// The store accepts it on upsert and returns it on lookup; the embedding is
// opaque to the core.
type NoteRecord struct {
	Path        string         `json:"path"`
	ContentHash blockhash.Hash `json:"content_hash"`
	Embedding   []float32      `json:"embedding,omitempty"`
	Title       string         `json:"title,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Links       []string       `json:"links,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasEmbedding reports whether an embedding vector is attached.
func (r *NoteRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// Note represents a parsed Markdown file in the kiln.
type Note struct {
	Path        string                 `json:"path"`
	Content     []byte                 `json:"-"`
	Body        string                 `json:"body"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Links       []string               `json:"links,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	ContentHash blockhash.Hash         `json:"content_hash"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path        string         `json:"path"`
	Title       string         `json:"title,omitempty"`
	ContentHash blockhash.Hash `json:"content_hash"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Link represents a directed edge between two notes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "wikilink" or "embed"
}
