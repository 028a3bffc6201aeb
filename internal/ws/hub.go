package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sylph/internal/session"
	"sylph/internal/vision"
)

const writeTimeout = 10 * time.Second

// Hub fans per-tick snapshots out to WebSocket subscribers, keyed by
// session ID.
type Hub struct {
	logger *log.Logger

	// clients maps session_id -> set of connections
	clients map[string]map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// Register adds a connection for a session.
func (h *Hub) Register(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.clients[sessionID][conn] = true
	h.logger.Printf("[WS] client registered for session %s (total: %d)", sessionID, len(h.clients[sessionID]))
}

// Unregister removes a connection for a session.
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[sessionID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, sessionID)
		}
		h.logger.Printf("[WS] client unregistered for session %s", sessionID)
	}
}

// HasClients reports whether any subscriber is attached to a session.
func (h *Hub) HasClients(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.clients[sessionID]
	return ok && len(conns) > 0
}

// Sessions returns the IDs currently holding subscribers.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// conns snapshots the subscriber set so writes happen outside the lock.
func (h *Hub) conns(sessionID string) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.clients[sessionID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*websocket.Conn, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// Broadcast sends a raw message to every subscriber of a session. Failed
// connections are dropped.
func (h *Hub) Broadcast(sessionID string, message []byte) {
	for _, conn := range h.conns(sessionID) {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Printf("[WS] send failed for session %s: %v", sessionID, err)
			h.Unregister(sessionID, conn)
			conn.Close()
		}
	}
}

// BroadcastSnapshot sends one published tick to a session's subscribers.
func (h *Hub) BroadcastSnapshot(sessionID string, snap vision.Snapshot) {
	if !h.HasClients(sessionID) {
		return
	}

	data, err := json.Marshal(NewSnapshotMessage(sessionID, snap))
	if err != nil {
		h.logger.Printf("[WS] snapshot marshal failed: %v", err)
		return
	}
	h.Broadcast(sessionID, data)
}

// BroadcastSummary sends the final aggregate to a session's subscribers,
// typically right before the session closes.
func (h *Hub) BroadcastSummary(sessionID string, sum *session.Summary) {
	if !h.HasClients(sessionID) {
		return
	}

	data, err := json.Marshal(NewSummaryMessage(sessionID, sum))
	if err != nil {
		h.logger.Printf("[WS] summary marshal failed: %v", err)
		return
	}
	h.Broadcast(sessionID, data)
}

// CloseSession disconnects every subscriber of a session with a normal
// closure frame.
func (h *Hub) CloseSession(sessionID string) {
	conns := h.conns(sessionID)

	h.mu.Lock()
	delete(h.clients, sessionID)
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
	}
	if len(conns) > 0 {
		h.logger.Printf("[WS] closed %d client(s) for session %s", len(conns), sessionID)
	}
}
