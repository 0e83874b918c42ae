package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// writeWait bounds a single write so one stalled browser cannot hold up
// Broadcast
const writeWait = 5 * time.Second

// Event is pushed to every connected browser
type Event struct {
	Type  string `json:"type"` // refresh
	RunID string `json:"runId,omitempty"`
}

// Hub tracks websocket clients and fans events out to them
type Hub struct {
	clients   map[*websocket.Conn]struct{}
	mu        sync.Mutex
	upgrader  websocket.Upgrader
	writeWait time.Duration
	logger    *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeWait: writeWait,
		logger:    logger,
	}
}

// Broadcast sends ev to all clients, dropping the ones that fail
func (h *Hub) Broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
			h.removeLocked(c)
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			h.removeLocked(c)
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	wsClients.Inc()

	// Clients never send anything; the read loop only detects close
	go func() {
		defer func() {
			h.mu.Lock()
			h.removeLocked(conn)
			h.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// removeLocked drops and closes a client. h.mu must be held.
func (h *Hub) removeLocked(c *websocket.Conn) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	wsClients.Dec()
	c.Close()
}
