// Package observer implements the telemetry observer: it subscribes to
// the bus, keeps a bounded in-memory ring buffer of recent events, and
// exposes them over plain HTTP — a snapshot endpoint and a live SSE
// stream — independent of whether the bus itself is reachable.
//
// The HTTP wiring follows the donor's own http_server.go idiom: a bare
// http.ServeMux, JSON responses built by hand with encoding/json, no
// router framework.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/bus"
)

const (
	defaultCapacity = 5000
	sseWarmupTail   = 500
)

// Observer fans bus events out to HTTP clients and keeps a bounded
// history for late subscribers.
type Observer struct {
	logger *slog.Logger
	cap    int

	mu     sync.RWMutex
	buffer [][]byte

	clientsMu sync.Mutex
	clients   map[chan []byte]struct{}

	unsubscribe func()
}

// New constructs an Observer with the given ring buffer capacity
// (defaults to 5000, matching the default observer buffer size).
func New(capacity int, logger *slog.Logger) *Observer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		cap:     capacity,
		logger:  logger,
		clients: make(map[chan []byte]struct{}),
	}
}

// Subscribe attaches the Observer to a bus topic. The subscription is
// torn down when ctx is cancelled or Close is called.
//
// Failure model: if the bus subscription cannot be established, the
// Observer still serves whatever is already in its buffer and accepts
// manually injected events — only live bus delivery is affected.
func (o *Observer) Subscribe(ctx context.Context, sub bus.Subscriber, topic string) error {
	ch, unsubscribe, err := sub.Subscribe(ctx, topic)
	if err != nil {
		o.logger.Warn("observer bus subscribe failed; serving buffer/manual events only", "error", err)
		return err
	}
	o.unsubscribe = unsubscribe

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				o.Ingest(msg.Payload)
			}
		}
	}()
	return nil
}

// Close releases the bus subscription, if any.
func (o *Observer) Close() error {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	return nil
}

// Ingest appends a raw event line to the buffer and fans it out to
// every live SSE client. Exposed directly so a caller can inject
// synthetic events (e.g. system_reset) or feed the Observer without a
// bus in tests/single-process deployments.
func (o *Observer) Ingest(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	o.mu.Lock()
	o.buffer = append(o.buffer, cp)
	if len(o.buffer) > o.cap {
		o.buffer = o.buffer[len(o.buffer)-o.cap:]
	}
	o.mu.Unlock()

	o.clientsMu.Lock()
	defer o.clientsMu.Unlock()
	for client := range o.clients {
		select {
		case client <- cp:
		default:
			// slow client, drop this event for it
		}
	}
}

func (o *Observer) snapshot() [][]byte {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([][]byte, len(o.buffer))
	copy(out, o.buffer)
	return out
}

func (o *Observer) clear() {
	o.mu.Lock()
	o.buffer = nil
	o.mu.Unlock()
}

// Mux returns an http.ServeMux wired with /events, /sse, and /clear.
func (o *Observer) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", o.handleEvents)
	mux.HandleFunc("/sse", o.handleSSE)
	mux.HandleFunc("/clear", o.handleClear)
	return mux
}

func (o *Observer) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := o.snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("["))
	for i, raw := range events {
		if i > 0 {
			w.Write([]byte(","))
		}
		w.Write(raw)
	}
	w.Write([]byte("]"))
}

func (o *Observer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := make(chan []byte, 64)
	o.clientsMu.Lock()
	o.clients[client] = struct{}{}
	o.clientsMu.Unlock()
	defer func() {
		o.clientsMu.Lock()
		delete(o.clients, client)
		o.clientsMu.Unlock()
	}()

	warmup := o.snapshot()
	if len(warmup) > sseWarmupTail {
		warmup = warmup[len(warmup)-sseWarmupTail:]
	}
	for _, raw := range warmup {
		if !writeSSEEvent(w, raw) {
			return
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-client:
			if !ok {
				return
			}
			if !writeSSEEvent(w, raw) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, raw []byte) bool {
	_, err := fmt.Fprintf(w, "data: %s\n\n", raw)
	return err == nil
}

func (o *Observer) handleClear(w http.ResponseWriter, r *http.Request) {
	o.clear()

	reset := map[string]interface{}{
		"_telemetry": true,
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"type":       "system_reset",
	}
	line, err := json.Marshal(reset)
	if err == nil {
		o.Ingest(line)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"cleared"}`))
}
