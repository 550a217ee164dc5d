package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/noteservice"
	"github.com/starford/kiln/internal/query"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

const (
	maxNoteBody  = 10 << 20
	maxQueryBody = 1 << 20
)

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// pathParam writes 400 and returns false when the request names no note.
func pathParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return path, true
}

// decodeBody reads at most limit bytes of JSON into v, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag, descendants included"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated_at, title, path)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("tag"), q.Get("sort"))
	if err != nil {
		writeError(w, "list notes", "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": items, "total": total})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, "get note", path, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes. The note is written to the vault and
// ingested before the response, so the reply carries its change report.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeBody(w, r, maxNoteBody, &req) {
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "create note", req.Path, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*. An If-Match header, quoted or bare,
// must equal the current content hash.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			If-Match	header	string				false	"Content hash for optimistic concurrency"
//	@Param			body	body		UpdateNoteRequest	true	"Updated content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	var req UpdateNoteRequest
	if !decodeBody(w, r, maxNoteBody, &req) {
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	note, err := h.svc.UpdateNote(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, "update note", path, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		writeError(w, "delete note", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", q, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the knowledge graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"links": links,
	})
}

// Blocks handles GET /api/blocks/*.
//
//	@Summary		List the stored blocks of a note
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	BlocksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{path} [get]
func (h *Handler) Blocks(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	blocks, err := h.svc.Blocks(r.Context(), path)
	if err != nil {
		writeError(w, "blocks", path, err)
		return
	}
	writeJSON(w, http.StatusOK, BlocksResponse{Path: path, Blocks: blocks})
}

// Outlinks handles GET /api/outlinks/*.
func (h *Handler) Outlinks(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	links, err := h.svc.Outlinks(r.Context(), path)
	if err != nil {
		writeError(w, "outlinks", path, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

// Backlinks handles GET /api/backlinks/*.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	paths, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		writeError(w, "backlinks", path, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backlinks": paths})
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "tags", "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Query handles POST /api/query.
//
//	@Summary		Run or explain a graph query
//	@Description	Accepts PGQ/Cypher, SQL-sugar or jq-style text. With explain set, returns the rendered query without running it.
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"Query"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, maxQueryBody, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
		return
	}

	if req.Explain {
		q, err := h.svc.Explain(req.Query)
		if err != nil {
			queryError(w, req.Query, err)
			return
		}
		writeJSON(w, http.StatusOK, newQueryResponse(q, nil))
		return
	}

	res, err := h.svc.Query(r.Context(), req.Query, req.Params)
	if err != nil {
		queryError(w, req.Query, err)
		return
	}
	writeJSON(w, http.StatusOK, newQueryResponse(res.Query, res.Rows))
}

// queryError reports the failing phase. Parse, transform and render failures
// are always the caller's fault; execution failures map by kind.
func queryError(w http.ResponseWriter, text string, err error) {
	var perr *query.PipelineError
	if errors.As(err, &perr) && perr.Phase != query.PhaseExecute {
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error: perr.Err.Error(),
			Kind:  apperr.KindInvalid.String(),
			Phase: string(perr.Phase),
		})
		return
	}
	kind := apperr.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		writeJSON(w, status, errResponse{Error: err.Error(), Kind: kind.String(), Phase: string(query.PhaseExecute)})
		return
	}
	slog.Error("query failed", slog.String("query", text), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
