// Package ws bridges the global event bus into WebSocket connections for
// the submission surface's /ws/logs endpoint (§6).
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/remotepilot/daemon/internal/events"
)

// Frame is the wire shape of one entry on the subscribe stream: "type" is
// "log" or "state" per §6.
type Frame struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Data   any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every bus event out to connected WS clients. A client whose send
// channel is full has the frame dropped for it rather than blocking the
// broadcaster (grounded on the teacher's ws.Hub.broadcast).
type Hub struct {
	mu          sync.RWMutex
	clients     map[*client]struct{}
	bus         *events.Bus
	unsubscribe func()
}

// NewHub creates a Hub subscribed to every event on bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		bus:     bus,
	}
	h.unsubscribe = bus.Subscribe(h.onEvent)
	return h
}

func (h *Hub) onEvent(e events.Event) {
	frameType := "log"
	if e.Type == events.EventState {
		frameType = "state"
	}
	data, err := json.Marshal(Frame{TaskID: e.TaskID, Type: frameType, Data: e.Data})
	if err != nil {
		slog.Error("marshal ws frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow client: drop this frame rather than block the broadcaster
		}
	}
}

// ServeWS upgrades the request and streams frames until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.register(c)
	defer h.unregister(c)

	ctx := r.Context()
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close(websocket.StatusNormalClosure, "")
}

// readPump drains the connection solely to detect disconnects: the
// subscribe stream is server-to-client only.
func (c *client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close disconnects all clients and unsubscribes from the bus.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
