package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the dashboard is served from a different origin in dev
	},
}

// Hub fans each polling snapshot out to the connected dashboard clients. A
// client that cannot keep up (full send buffer or write failure) is dropped
// rather than allowed to stall the broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*hubClient
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*hubClient)}
}

// ServeWS upgrades the request and registers the connection for snapshot
// broadcasts. It is mounted on the REST router's /ws path.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{
		id:   "ws-" + uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 8),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()
	setWSClients(count)
	slog.Info("dashboard client connected", "id", client.id, "addr", r.RemoteAddr, "clients", count)

	go h.writePump(client)
	go h.readPump(client)
}

// Broadcast marshals v once and queues it to every client.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("broadcast marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			slog.Warn("dropping slow dashboard client", "id", c.id)
			h.drop(c)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.drop(c)
	}
}

func (h *Hub) writePump(c *hubClient) {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("websocket write failed", "id", c.id, "error", err)
				h.drop(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump consumes control frames and notices the peer going away; the
// dashboard never sends data messages.
func (h *Hub) readPump(c *hubClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "id", c.id, "error", err)
			}
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *hubClient) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()

		h.mu.Lock()
		delete(h.clients, c.id)
		count := len(h.clients)
		h.mu.Unlock()

		setWSClients(count)
		slog.Info("dashboard client disconnected", "id", c.id, "clients", count)
	})
}
