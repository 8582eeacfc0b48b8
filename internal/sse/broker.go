// Package sse streams repository changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/starford/gitnotes/internal/noteservice"
)

// TreeUpdated follows note changes, at most once per throttle interval, so
// clients can reload the tree instead of patching it.
const TreeUpdated = "tree.updated"

const (
	clientBuffer  = 64
	keepAliveTick = 30 * time.Second
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

// Broker fans events out to subscribed clients. A client that falls behind
// loses messages; publishing never blocks.
type Broker struct {
	throttle time.Duration

	mu       sync.Mutex
	clients  map[chan []byte]struct{}
	lastTree time.Time
	closed   bool
}

// NewBroker creates a broker sending at most one tree.updated per throttle.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	return &Broker{throttle: throttle, clients: make(map[chan []byte]struct{})}
}

// Close disconnects every client. Later calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.clients {
		close(ch)
	}
	clear(b.clients)
}

// Subscribe registers a client. After Close the returned channel is already
// closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.clients[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Publish sends event to every client.
func (b *Broker) Publish(event Event) {
	msg, err := event.frame()
	if err != nil {
		slog.Warn("sse: drop unencodable event", slog.String("type", event.Type), slog.String("error", err.Error()))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send(msg)
}

// PublishChange broadcasts a service change and, for note changes, a
// throttled tree.updated. Its signature matches noteservice.WithPublisher.
func (b *Broker) PublishChange(change noteservice.Event) {
	msg, err := Event{Type: change.Kind, Data: change}.frame()
	if err != nil {
		return
	}
	tree, _ := Event{Type: TreeUpdated, Data: struct{}{}}.frame()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.send(msg)
	if change.Kind == noteservice.CommitCreated {
		return
	}
	if now := time.Now(); now.Sub(b.lastTree) >= b.throttle {
		b.lastTree = now
		b.send(tree)
	}
}

// send must be called with mu held.
func (b *Broker) send(msg []byte) {
	if b.closed {
		return
	}
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// ServeHTTP streams events to one client until it disconnects or the broker
// closes. Idle streams get a comment line every 30 seconds.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAliveTick)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
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
