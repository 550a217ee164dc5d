package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/kiln/internal/ingest"
	"github.com/starford/kiln/internal/noteservice"
	"github.com/starford/kiln/internal/query"
	"github.com/starford/kiln/internal/testutil"
)

// testEnv sets up a temp vault, SQLite store, service, and router for testing.
// An empty authToken means disabled mode; a non-empty one means token mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	enabled := authToken != ""
	return testEnvFull(t, enabled, authToken, nil, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler, limiter *rate.Limiter) (*noteservice.Service, http.Handler) {
	t.Helper()

	_, vault := testutil.TestVault(t)
	store := testutil.TestSQLiteStore(t)
	ing := ingest.New(store, ingest.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	pipeline, err := query.Default(store.Backend(), nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	svc := noteservice.NewService(vault, ing, pipeline)
	router := NewRouter(svc, authEnabled, authToken, sseHandler, limiter)
	return svc, router
}

func createNote(t *testing.T, router http.Handler, path, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"path": path, "content": content})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	// Create note.
	body, _ := json.Marshal(map[string]string{"path": "hello.md", "content": "# Hello\nWorld"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	// Get note.
	req = httptest.NewRequest(http.MethodGet, "/notes/hello.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "hello.md" {
		t.Errorf("path = %q", note.Path)
	}
	if note.Title != "Hello" {
		t.Errorf("title = %q, want Hello", note.Title)
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	body, _ := json.Marshal(map[string]string{"path": "dup.md", "content": "a"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}

	// Second create should 409.
	req = httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Kind != "already_exists" {
		t.Errorf("kind = %q, want already_exists", resp.Kind)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	// Create.
	body, _ := json.Marshal(map[string]string{"path": "lock.md", "content": "v1"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	// Update with correct content hash.
	updateBody, _ := json.Marshal(map[string]string{"content": "v2"})
	req = httptest.NewRequest(http.MethodPut, "/notes/lock.md", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", created.ContentHash.Hex())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct content hash = %d, body = %s", w.Code, w.Body.String())
	}

	// Update with stale content hash → 409.
	req = httptest.NewRequest(http.MethodPut, "/notes/lock.md", bytes.NewReader(updateBody))
	req.Header.Set("If-Match", `"`+created.ContentHash.Hex()+`"`) // stale now
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale content hash = %d, want 409", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Kind != "conflict" {
		t.Errorf("kind = %q, want conflict", resp.Kind)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")

	body, _ := json.Marshal(map[string]string{"path": "nolock.md", "content": "v1"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Update without If-Match should succeed (no locking enforced).
	updateBody, _ := json.Marshal(map[string]string{"content": "v2"})
	req = httptest.NewRequest(http.MethodPut, "/notes/nolock.md", bytes.NewReader(updateBody))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")

	body, _ := json.Marshal(map[string]string{"path": "bye.md", "content": "gone"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	req = httptest.NewRequest(http.MethodDelete, "/notes/bye.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}

	// GET should now 404.
	req = httptest.NewRequest(http.MethodGet, "/notes/bye.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")

	for _, name := range []string{"a.md", "b.md"} {
		body, _ := json.Marshal(map[string]string{"path": name, "content": "# " + name})
		req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/notes?limit=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	notes := resp["notes"].([]any)
	if len(notes) != 2 {
		t.Errorf("len(notes) = %d, want 2", len(notes))
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	body, _ := json.Marshal(map[string]string{"path": "find.md", "content": "uniquetoken here"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	req = httptest.NewRequest(http.MethodGet, "/search?q=uniquetoken", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	results := resp["results"].([]any)
	if len(results) != 1 {
		t.Errorf("search results = %d, want 1", len(results))
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	for _, n := range []struct{ path, content string }{
		{"a.md", "links to [[b]]"},
		{"b.md", "links to [[a]]"},
	} {
		body, _ := json.Marshal(map[string]string{"path": n.path, "content": n.content})
		req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	nodes := resp["nodes"].([]any)
	links := resp["links"].([]any)
	if len(nodes) < 2 {
		t.Errorf("nodes = %d, want >= 2", len(nodes))
	}
	if len(links) < 2 {
		t.Errorf("links = %d, want >= 2", len(links))
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(map[string]string{"path": "auth.md", "content": "test"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/notes/nope.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	body, _ := json.Marshal(map[string]string{"content": "x"})
	req := httptest.NewRequest(http.MethodPut, "/notes/ghost.md", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	_, router := testEnvWithSSE(t, false, "")

	// Disabled mode → should not 401. SSE handler will write 200 and block,
	// so we cancel the context after a short time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) (*noteservice.Service, http.Handler) {
	t.Helper()

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return testEnvFull(t, authEnabled, token, sseHandler, nil)
}

func TestBlocksEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	if w := createNote(t, router, "blocks.md", "# A\n\npara1\n\n# B\n\npara2\n"); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/blocks/blocks.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("blocks = %d, body = %s", w.Code, w.Body.String())
	}
	var resp BlocksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(resp.Blocks))
	}
	if resp.Blocks[3].Content != "para2" || resp.Blocks[3].Parent != 2 {
		t.Errorf("block 3 = %+v", resp.Blocks[3])
	}

	req = httptest.NewRequest(http.MethodGet, "/blocks/missing.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("blocks of missing note = %d, want 404", w.Code)
	}
}

func TestUpdateReportsChanges(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "two.md", "# A\n\npara1\n\n# B\n\npara2\n")

	body, _ := json.Marshal(map[string]string{"content": "# A\n\npara1\n\n# B\n\npara2-edited\n"})
	req := httptest.NewRequest(http.MethodPut, "/notes/two.md", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Changes == nil {
		t.Fatal("changes missing from update response")
	}
	if len(note.Changes.Changes) != 1 || note.Changes.Changes[0].Position != 3 {
		t.Errorf("changes = %+v, want one change at position 3", note.Changes.Changes)
	}
}

func postQuery(t *testing.T, router http.Handler, req QueryRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestQueryEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "go.md", "# Go\n")
	createNote(t, router, "rust.md", "# Rust\n")
	createNote(t, router, "index.md", "# Index\n\n[[Go]] and [[Rust]]\n")

	for _, text := range []string{
		"MATCH (a {title:'Index'})-[:wikilink]->(b) RETURN b.path",
		"SELECT outlinks.path FROM 'Index'",
		`outlinks("Index") | .path`,
	} {
		w := postQuery(t, router, QueryRequest{Query: text})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", text, w.Code, w.Body.String())
		}
		var resp QueryResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Columns) != 1 || len(resp.Rows) != 2 {
			t.Errorf("%s: columns = %v, rows = %v", text, resp.Columns, resp.Rows)
			continue
		}
		col := resp.Columns[0]
		if resp.Rows[0][col] != "go.md" || resp.Rows[1][col] != "rust.md" {
			t.Errorf("%s: rows = %v", text, resp.Rows)
		}
	}
}

func TestQueryEndpoint_ParamsAndExplain(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "b.md", "# B\n")
	createNote(t, router, "a.md", "# A\n\n[[b]]\n")

	w := postQuery(t, router, QueryRequest{
		Query:  "MATCH (a)-[:wikilink]->(b) WHERE a.title = $src RETURN b.title",
		Params: map[string]any{"src": "A"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Rows) != 1 || resp.Rows[0]["b.title"] != "B" {
		t.Errorf("rows = %v", resp.Rows)
	}

	w = postQuery(t, router, QueryRequest{Query: "MATCH (n) RETURN n.title", Explain: true})
	if w.Code != http.StatusOK {
		t.Fatalf("explain status = %d", w.Code)
	}
	resp = QueryResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Backend != "sqlite" || resp.Text == "" || resp.Rows != nil {
		t.Errorf("explain = %+v", resp)
	}
}

func TestQueryEndpoint_Errors(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name  string
		req   QueryRequest
		phase string
	}{
		{"empty", QueryRequest{}, ""},
		{"no syntax matches", QueryRequest{Query: "this is not a query"}, "parse"},
		{"unbound parameter", QueryRequest{Query: "MATCH (n) WHERE n.title = $t RETURN n.path"}, "execute"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postQuery(t, router, tc.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
			var resp errResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Phase != tc.phase {
				t.Errorf("phase = %q, want %q", resp.Phase, tc.phase)
			}
		})
	}
}

func TestQueryEndpoint_RateLimited(t *testing.T) {
	_, router := testEnvFull(t, false, "", nil, rate.NewLimiter(rate.Every(time.Hour), 1))

	if w := postQuery(t, router, QueryRequest{Query: "MATCH (n) RETURN n.path"}); w.Code != http.StatusOK {
		t.Fatalf("first query = %d", w.Code)
	}
	w := postQuery(t, router, QueryRequest{Query: "MATCH (n) RETURN n.path"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second query = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestLinksAndTagsEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "b.md", "# B\n")
	createNote(t, router, "a.md", "# A\n\n#topic [[b]] [[nowhere]]\n")

	req := httptest.NewRequest(http.MethodGet, "/outlinks/a.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var out struct {
		Links []noteservice.LinkItem `json:"links"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if len(out.Links) != 2 || out.Links[0].Path != "b.md" || !out.Links[0].Resolved || out.Links[1].Resolved {
		t.Errorf("outlinks = %+v", out.Links)
	}

	req = httptest.NewRequest(http.MethodGet, "/backlinks/b.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var back struct {
		Backlinks []string `json:"backlinks"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &back)
	if len(back.Backlinks) != 1 || back.Backlinks[0] != "a.md" {
		t.Errorf("backlinks = %v", back.Backlinks)
	}

	req = httptest.NewRequest(http.MethodGet, "/tags", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"topic"`)) {
		t.Errorf("tags = %d %s", w.Code, w.Body.String())
	}
}
