package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/kiln/internal/ingest"
)

func next(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "note.created", Data: map[string]string{"path": "a.md"}})

	s := next(t, ch)
	if !strings.Contains(s, "event: note.created") {
		t.Errorf("missing event type in %q", s)
	}
	if !strings.Contains(s, `"path":"a.md"`) {
		t.Errorf("missing data in %q", s)
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "a", Data: 1})
	b.Publish(Event{Type: "b", Data: 2})

	if s := next(t, ch); !strings.HasPrefix(s, "id: 1\nevent: a\n") {
		t.Errorf("first = %q", s)
	}
	if s := next(t, ch); !strings.HasPrefix(s, "id: 2\nevent: b\n") {
		t.Errorf("second = %q", s)
	}
}

func TestPublishNoteEvent_Payload(t *testing.T) {
	b := NewBroker(WithGraphThrottle(time.Hour))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent(ingest.Event{Kind: ingest.EventUpdated, Path: "doc.md", ChangedBlocks: 1, TotalBlocks: 4})

	want := "id: 1\nevent: note.updated\ndata: {\"path\":\"doc.md\",\"changed_blocks\":1,\"total_blocks\":4}\n\n"
	if got := next(t, ch); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
	want = "id: 2\nevent: graph.updated\ndata: {\"paths\":[\"doc.md\"]}\n\n"
	if got := next(t, ch); got != want {
		t.Errorf("graph message = %q, want %q", got, want)
	}
}

func TestPublishNoteEvent_GraphThrottle(t *testing.T) {
	b := NewBroker(WithGraphThrottle(200 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event triggers graph.updated at once.
	b.PublishNoteEvent(ingest.Event{Kind: ingest.EventCreated, Path: "a.md", ChangedBlocks: 2, TotalBlocks: 2})
	// The next two land inside the window and are folded into one trailing event.
	b.PublishNoteEvent(ingest.Event{Kind: ingest.EventUpdated, Path: "b.md", ChangedBlocks: 1, TotalBlocks: 4})
	b.PublishNoteEvent(ingest.Event{Kind: ingest.EventDeleted, Path: "c.md"})

	var graphs []string
	notes := 0
	deadline := time.After(time.Second)
	for len(graphs) < 2 {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "event: graph.updated") {
				graphs = append(graphs, s)
			} else {
				notes++
			}
		case <-deadline:
			t.Fatalf("graph events = %d, want 2", len(graphs))
		}
	}

	if notes != 3 {
		t.Errorf("note events = %d, want 3", notes)
	}
	if !strings.Contains(graphs[0], `{"paths":["a.md"]}`) {
		t.Errorf("first graph event = %q", graphs[0])
	}
	if !strings.Contains(graphs[1], `{"paths":["b.md","c.md"]}`) {
		t.Errorf("trailing graph event = %q", graphs[1])
	}

	// Nothing else is pending.
	select {
	case msg := <-ch:
		t.Errorf("unexpected message %q", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPublishNoteEvent_UnknownKindIgnored(t *testing.T) {
	b := NewBroker(WithGraphThrottle(time.Hour))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent(ingest.Event{Kind: "renamed", Path: "a.md"})
	b.Publish(Event{Type: "marker", Data: struct{}{}})

	if s := next(t, ch); !strings.Contains(s, "event: marker") {
		t.Errorf("first message = %q, want marker", s)
	}
}

// flushRecorder is an httptest.ResponseRecorder safe to read while the
// handler is still writing.
type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (r *flushRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *flushRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResponseRecorder.Flush()
}

func (r *flushRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func serve(t *testing.T, b *Broker) (*flushRecorder, context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	return w, cancel, done
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	w, cancel, done := serve(t, b)
	defer cancel()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "note.updated", Data: map[string]string{"path": "x.md"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	if body := w.body(); !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	b := NewBroker(WithHeartbeat(20 * time.Millisecond))
	defer b.Close()

	w, cancel, done := serve(t, b)
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if body := w.body(); !strings.Contains(body, ": ping\n\n") {
		t.Errorf("no heartbeat in %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(WithClientBuffer(4))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Overfill the buffer; Publish must not block.
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}

	deadline := time.Now().Add(time.Second)
	for len(ch) < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(ch); n != 4 {
		t.Errorf("buffered = %d, want 4", n)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "note.updated", Data: map[string]string{"path": "x.md"}})
	b.PublishNoteEvent(ingest.Event{Kind: ingest.EventUpdated, Path: "x.md"})
	b.Close()
}
