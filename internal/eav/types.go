// Package eav defines the Entity/Attribute/Value + graph data model and the
// narrow storage capabilities every backend implements.
package eav

import (
	"time"

	"github.com/starford/kiln/internal/blockhash"
)

// EntityType classifies an entity.
type EntityType string

const (
	EntityNote    EntityType = "note"
	EntityBlock   EntityType = "block"
	EntityTag     EntityType = "tag"
	EntitySection EntityType = "section"
	EntityMedia   EntityType = "media"
	EntityPerson  EntityType = "person"
)

// Entity is the stable identity of one note or other addressable object.
// IDs are never reused; a path keeps its entity ID across edits.
type Entity struct {
	ID          string         `json:"id"`
	Type        EntityType     `json:"type"`
	Path        string         `json:"path,omitempty"`
	Title       string         `json:"title,omitempty"`
	ContentHash blockhash.Hash `json:"content_hash"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TimeLayout is the stored form of entity timestamps: fixed width, so text
// order is time order. Query rows carry timestamps as strings in this layout
// on every backend.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeLayout, in UTC.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) { return time.Parse(TimeLayout, s) }

// EntityFilter narrows ListEntities. Zero fields match everything.
type EntityFilter struct {
	Type       EntityType
	PathPrefix string
	Title      string
	Tag        string
	Sort       string // "path" (default), "title" or "updated"
	Limit      int
	Offset     int
}

// Property namespaces.
const (
	NamespaceCore        = "core"
	NamespaceFrontmatter = "frontmatter"
	pluginPrefix         = "plugin:"
)

// PluginNamespace returns the namespace reserved for a plugin.
func PluginNamespace(name string) string {
	return pluginPrefix + name
}

// Property is a namespaced key/value attached to an entity.
type Property struct {
	EntityID  string        `json:"entity_id"`
	Namespace string        `json:"namespace"`
	Key       string        `json:"key"`
	Value     PropertyValue `json:"value"`
}

// Relation types produced by ingestion.
const (
	RelationWikilink = "wikilink"
	RelationEmbed    = "embed"
)

// Relation is a directed, typed edge. To is empty while the target note does
// not exist yet; Target keeps the raw link text so the edge can be resolved later.
type Relation struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to,omitempty"`
	Type      string         `json:"type"`
	Target    string         `json:"target"`
	BlockHash blockhash.Hash `json:"block_hash,omitempty"`
	Position  int            `json:"position"`
}

// Resolved reports whether the relation points at an existing entity.
func (r Relation) Resolved() bool { return r.To != "" }

// Block is an ordered unit of content under an entity.
type Block struct {
	EntityID string         `json:"entity_id"`
	Position int            `json:"position"`
	Parent   int            `json:"parent"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Hash     blockhash.Hash `json:"hash"`
	Offset   int            `json:"offset"`
	Level    int            `json:"level,omitempty"`
}

// Tag is a taxonomy label. Hierarchical names ("a/b") register their parents.
type Tag struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
	Count  int    `json:"count"`
}

// TagParent returns the parent of a hierarchical tag name, or "".
func TagParent(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[:i]
		}
	}
	return ""
}

// TagLineage returns name and all its ancestors, root first.
func TagLineage(name string) []string {
	var out []string
	for n := name; n != ""; n = TagParent(n) {
		out = append([]string{n}, out...)
	}
	return out
}

// SearchHit is one full-text match.
type SearchHit struct {
	EntityID string `json:"entity_id"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}
