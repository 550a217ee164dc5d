// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes kiln query and note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/noteservice"
	"github.com/starford/kiln/internal/query"
)

const contractURI = "kiln://note-format"

// Server wraps the MCP server with kiln tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all kiln tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"kiln",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_kiln",
		mcp.WithDescription("Run a graph query over the notes. Accepts PGQ/Cypher "+
			"(MATCH (a {title:'Index'})-[:wikilink]->(b) RETURN b.path), SQL-sugar "+
			"(SELECT outlinks.title FROM 'Index') or jq-style (outlinks(\"Index\") | .title) text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text")),
		mcp.WithObject("params", mcp.Description("Values for $name parameters in the query")),
	), s.queryKiln)

	s.mcp.AddTool(mcp.NewTool("explain_query",
		mcp.WithDescription("Show the backend query a text translates to, without running it."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text")),
	), s.explainQuery)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note blocks and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum hits (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new Markdown note at the specified path. "+
			"Content should follow the note format contract (get_note_contract tool or the "+
			contractURI+" resource)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new note (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the kiln note format contract."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List note paths, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Optional tag; descendants match too")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_outlinks",
		mcp.WithDescription("List the wikilinks of a note and whether each resolves."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note")),
	), s.getOutlinks)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the tag taxonomy with usage counts."),
	), s.listTags)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown note format understood by the kiln parser."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) queryKiln(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var params map[string]any
	if p, ok := req.GetArguments()["params"].(map[string]any); ok {
		params = p
	}
	res, err := s.svc.Query(ctx, text, params)
	if err != nil {
		return queryError(err), nil
	}
	return jsonResult(map[string]any{
		"backend": res.Query.Backend,
		"rows":    res.Rows,
	})
}

func (s *Server) explainQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q, err := s.svc.Explain(text)
	if err != nil {
		return queryError(err), nil
	}
	return mcp.NewToolResultText(q.Backend + ":\n" + q.Text), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, q, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, notePath(path))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.svc.CreateNote(ctx, path, []byte(content)); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("note already exists: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListNotes(ctx, 0, 0, req.GetString("tag", ""), "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) getOutlinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Outlinks(ctx, notePath(path))
	if err != nil {
		if apperr.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(links)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, notePath(path))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tags)
}

// notePath accepts a wikilink-style stem as well as a path.
func notePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if !strings.HasSuffix(p, ".md") {
		p += ".md"
	}
	return p
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// queryError reports the failing pipeline phase so the caller can fix the text.
func queryError(err error) *mcp.CallToolResult {
	var perr *query.PipelineError
	if errors.As(err, &perr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", perr.Phase, perr.Err))
	}
	return mcp.NewToolResultError(err.Error())
}
