// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/kiln/internal/ingest"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NoteData is the payload of note.created, note.updated and note.deleted.
type NoteData struct {
	Path          string `json:"path"`
	ChangedBlocks int    `json:"changed_blocks"`
	TotalBlocks   int    `json:"total_blocks"`
}

// GraphData is the payload of graph.updated: the notes changed since the
// previous graph.updated.
type GraphData struct {
	Paths []string `json:"paths"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithGraphThrottle sets the minimum interval between graph.updated events.
func WithGraphThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.graphMin = d
		}
	}
}

// WithHeartbeat sets how often idle connections receive a comment line.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// WithClientBuffer sets the per-client message buffer.
func WithClientBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.clientBuf = n
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the clients, the event sequence and the graph
// throttle state. Public methods talk to it over channels.
type Broker struct {
	graphMin  time.Duration
	heartbeat time.Duration
	clientBuf int
	logger    *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan ingest.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker and starts its loop. Close stops it.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		graphMin:      2 * time.Second,
		heartbeat:     30 * time.Second,
		clientBuf:     64,
		logger:        slog.Default(),
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan ingest.Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// loop state, touched only by run.
type loop struct {
	b         *Broker
	clients   map[chan []byte]struct{}
	seq       uint64
	lastGraph time.Time
	pending   []string
	flush     *time.Timer
}

func (b *Broker) run() {
	defer close(b.stopped)

	l := &loop{b: b, clients: make(map[chan []byte]struct{})}
	// The timer fires a trailing graph.updated for changes that arrived
	// inside the throttle window.
	l.flush = time.NewTimer(time.Hour)
	l.flush.Stop()
	defer l.flush.Stop()

	for {
		select {
		case <-b.stopCh:
			for ch := range l.clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			l.clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := l.clients[ch]; ok {
				delete(l.clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			l.broadcast(ev)

		case ev := <-b.noteEventCh:
			l.note(ev)

		case <-l.flush.C:
			l.graph()

		case resp := <-b.countReqCh:
			resp <- len(l.clients)
		}
	}
}

func (l *loop) note(ev ingest.Event) {
	switch ev.Kind {
	case ingest.EventCreated, ingest.EventUpdated, ingest.EventDeleted:
	default:
		l.b.logger.Debug("sse: unknown note event", slog.String("kind", ev.Kind))
		return
	}
	l.broadcast(Event{Type: "note." + ev.Kind, Data: NoteData{
		Path:          ev.Path,
		ChangedBlocks: ev.ChangedBlocks,
		TotalBlocks:   ev.TotalBlocks,
	}})

	l.pending = append(l.pending, ev.Path)
	if wait := l.b.graphMin - time.Since(l.lastGraph); wait > 0 {
		if len(l.pending) == 1 {
			l.flush.Reset(wait)
		}
		return
	}
	l.graph()
}

func (l *loop) graph() {
	if len(l.pending) == 0 {
		return
	}
	l.flush.Stop()
	l.lastGraph = time.Now()
	l.broadcast(Event{Type: "graph.updated", Data: GraphData{Paths: l.pending}})
	l.pending = nil
}

func (l *loop) broadcast(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		l.b.logger.Warn("sse: encode event", slog.String("type", ev.Type), slog.String("error", err.Error()))
		return
	}
	l.seq++
	msg := make([]byte, 0, len(payload)+len(ev.Type)+32)
	msg = append(msg, "id: "...)
	msg = strconv.AppendUint(msg, l.seq, 10)
	msg = append(msg, "\nevent: "...)
	msg = append(msg, ev.Type...)
	msg = append(msg, "\ndata: "...)
	msg = append(msg, payload...)
	msg = append(msg, "\n\n"...)

	for ch := range l.clients {
		select {
		case ch <- msg:
		default:
			// Slow client; dropping keeps the loop responsive.
			l.b.logger.Debug("sse: client buffer full", slog.String("type", ev.Type))
		}
	}
}

// Close stops the loop and closes all client channels. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, b.clientBuf)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note change and schedules a throttled
// graph.updated. Its signature matches ingest.EventFunc.
func (b *Broker) PublishNoteEvent(ev ingest.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
