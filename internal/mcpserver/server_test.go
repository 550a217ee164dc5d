package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/kiln/internal/ingest"
	"github.com/starford/kiln/internal/noteservice"
	"github.com/starford/kiln/internal/query"
	"github.com/starford/kiln/internal/storage"
	"github.com/starford/kiln/internal/testutil"
)

func testServer(t *testing.T) (*Server, *storage.FS) {
	t.Helper()

	_, vault := testutil.TestVault(t)
	store := testutil.TestSQLiteStore(t)
	ing := ingest.New(store, ingest.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	pipeline, err := query.Default(store.Backend(), nil)
	if err != nil {
		t.Fatal(err)
	}

	srv := New(noteservice.NewService(vault, ing, pipeline), "test")
	return srv, vault
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"query_kiln":    srv.queryKiln,
		"explain_query": srv.explainQuery,
		"search_notes":  srv.searchNotes,
		"read_note":     srv.readNote,
		"create_note":   srv.createNote,
		"list_notes":    srv.listNotes,
		"get_outlinks":  srv.getOutlinks,
		"get_backlinks": srv.getBacklinks,
		"list_tags":     srv.listTags,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}

	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func create(t *testing.T, srv *Server, path, content string) {
	t.Helper()
	r := callTool(t, srv, "create_note", map[string]interface{}{"path": path, "content": content})
	if r.IsError {
		t.Fatalf("create %s: %s", path, resultText(r))
	}
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	text := resultText(r)
	if text != "created: test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{
		"path": "test.md",
	})
	text = resultText(r)
	if text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateDuplicate(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "dup.md", "x")

	r := callTool(t, srv, "create_note", map[string]interface{}{"path": "dup.md", "content": "y"})
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("duplicate create = %q", resultText(r))
	}
}

func TestListNotes(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "a.md", "a #keep")
	create(t, srv, "b.md", "b")

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	if text := resultText(r); text != "a.md\nb.md" {
		t.Errorf("list = %q", text)
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"tag": "keep"})
	if text := resultText(r); text != "a.md" {
		t.Errorf("list by tag = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "b.md", "# B")
	create(t, srv, "a.md", "links to [[b]]")

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b"})
	text := resultText(r)
	if text != "a.md" {
		t.Errorf("backlinks = %q, want a.md", text)
	}
}

func TestGetOutlinks(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "a.md", "links to [[b]]")

	r := callTool(t, srv, "get_outlinks", map[string]interface{}{"path": "a.md"})
	var links []noteservice.LinkItem
	if err := json.Unmarshal([]byte(resultText(r)), &links); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if len(links) != 1 || links[0].Target != "b" || links[0].Resolved {
		t.Errorf("outlinks = %+v", links)
	}

	r = callTool(t, srv, "get_outlinks", map[string]interface{}{"path": "missing.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestQueryKiln(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "go.md", "# Go")
	create(t, srv, "index.md", "# Index\n\n[[Go]]")

	r := callTool(t, srv, "query_kiln", map[string]interface{}{
		"query":  "MATCH (a)-[:wikilink]->(b) WHERE a.title = $src RETURN b.path",
		"params": map[string]any{"src": "Index"},
	})
	if r.IsError {
		t.Fatalf("query: %s", resultText(r))
	}
	var out struct {
		Backend string           `json:"backend"`
		Rows    []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Backend != "sqlite" || len(out.Rows) != 1 || out.Rows[0]["b.path"] != "go.md" {
		t.Errorf("query result = %+v", out)
	}
}

func TestQueryKiln_ReportsPhase(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "query_kiln", map[string]interface{}{"query": "not a query at all"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "parse failed") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestExplainQuery(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "explain_query", map[string]interface{}{"query": `outlinks("Index")`})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "sqlite:\n") || !strings.Contains(text, "SELECT") {
		t.Errorf("explain = %q", text)
	}
}

func TestListTags(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "a.md", "---\ntags: [area/sub]\n---\nbody")

	r := callTool(t, srv, "list_tags", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, `"area/sub"`) || !strings.Contains(text, `"area"`) {
		t.Errorf("tags = %s", text)
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)
	create(t, srv, "find.md", "uniquetoken here")

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "uniquetoken"})
	if r.IsError || !strings.Contains(resultText(r), "find.md") {
		t.Errorf("search = %s", resultText(r))
	}
}
