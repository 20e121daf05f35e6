package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/booth"
)

// EventSnapshot carries a kiosk state snapshot.
const EventSnapshot = "snapshot"

const (
	eventBuffer       = 16
	heartbeatInterval = 30 * time.Second
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  []byte
}

// Broadcaster fans events out to SSE clients. Slow clients miss events
// rather than blocking the publisher.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Message]struct{}
	closed  bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan Message]struct{}),
	}
}

// Subscribe returns a channel of events and a cleanup function the caller
// must run on disconnect. The channel is closed by Close.
func (b *Broadcaster) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, eventBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.clients[ch] = struct{}{}
	}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if _, ok := b.clients[ch]; ok {
			delete(b.clients, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsub
}

// Broadcast sends v as JSON under the given event name.
func (b *Broadcaster) Broadcast(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	msg := Message{Event: event, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close ends every stream so the HTTP server can shut down.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
}

func writeSSE(w http.ResponseWriter, msg Message) {
	if msg.Event != "" {
		w.Write([]byte("event: " + msg.Event + "\n"))
	}
	w.Write([]byte("data: "))
	w.Write(msg.Data)
	w.Write([]byte("\n\n"))
}

func boothEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", booth.CodeUnsupported)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch, unsub := cfg.Events.Subscribe()
		defer unsub()

		w.Write([]byte(": connected\n\n"))
		if data, err := json.Marshal(cfg.Kiosk.Snapshot()); err == nil {
			writeSSE(w, Message{Event: EventSnapshot, Data: data})
		}
		flusher.Flush()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				writeSSE(w, msg)
				flusher.Flush()

			case <-ticker.C:
				w.Write([]byte(": heartbeat\n\n"))
				flusher.Flush()

			case <-r.Context().Done():
				return
			}
		}
	}
}
