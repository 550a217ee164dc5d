package api

import (
	"github.com/starford/kiln/internal/eav"
	"github.com/starford/kiln/internal/noteservice"
	"github.com/starford/kiln/internal/query/render"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nWorld" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// BlocksResponse lists the stored blocks of one note.
type BlocksResponse struct {
	Path   string      `json:"path"`
	Blocks []eav.Block `json:"blocks"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []eav.SearchHit `json:"results" validate:"required"`
}

// GraphResponse wraps the knowledge graph.
type GraphResponse struct {
	Nodes []noteservice.GraphNode `json:"nodes" validate:"required"`
	Links []noteservice.GraphLink `json:"links" validate:"required"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query   string         `json:"query" example:"MATCH (a)-[:wikilink]->(b) RETURN b.path" validate:"required"`
	Params  map[string]any `json:"params,omitempty"`
	Explain bool           `json:"explain,omitempty"`
}

// QueryResponse carries the rendered query and, unless explaining, its rows.
type QueryResponse struct {
	Backend string           `json:"backend"`
	Text    string           `json:"text"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func newQueryResponse(q *render.RenderedQuery, rows []map[string]any) QueryResponse {
	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		cols[i] = c.Name
	}
	return QueryResponse{Backend: q.Backend, Text: q.Text, Columns: cols, Rows: rows}
}
