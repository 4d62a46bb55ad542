package event

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBufferSize = 64
	writeTimeout      = 5 * time.Second
)

var ErrHubClosed = errors.New("event hub closed")

// Message is a single event delivered to the UI
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Hub fans events out to UI subscribers. Emit never waits for a subscriber:
// a subscriber with a full buffer misses the message.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]chan Message
	nextID      uint64
	closed      bool
	bufferSize  int

	originPatterns []string
}

// NewHub creates a hub. originPatterns restricts the websocket origins, see websocket.AcceptOptions.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		subscribers:    make(map[uint64]chan Message),
		bufferSize:     defaultBufferSize,
		originPatterns: originPatterns,
	}
}

// Emit broadcasts the event to the current subscribers
func (h *Hub) Emit(event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	msg := Message{Event: event, Payload: payload}
	for id, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			log.Tracef("subscriber %d is slow, dropping %s", id, event)
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned function unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Message, h.bufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close disconnects all subscribers; later emits fail with ErrHubClosed
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
	return nil
}

// Handler streams events to a websocket client as JSON messages
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.handleWebSocket)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Errorf("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			log.Debugf("Failed to close WebSocket: %v", err)
		}
	}()

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	// the UI never sends anything; CloseRead cancels ctx once the peer goes away
	ctx := conn.CloseRead(r.Context())

	log.Debugf("UI subscribed to events from %s", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("UI from %s unsubscribed", r.RemoteAddr)
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(ctx, conn, msg); err != nil {
				log.Debugf("failed to write %s to %s: %v", msg.Event, r.RemoteAddr, err)
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
