package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		// Snapshots carry no credentials; cross-origin dashboards are fine.
		return true
	},
}

// Handler upgrades requests on /ws/vision/{session_id} and attaches the
// connection to the hub. Subscribers only receive; inbound frames go through
// the HTTP ingest endpoint.
type Handler struct {
	hub    *Hub
	exists func(sessionID string) bool
	logger *log.Logger
}

// NewHandler creates a WebSocket handler. exists gates upgrades on session
// liveness; nil accepts any ID.
func NewHandler(hub *Hub, exists func(string) bool, logger *log.Logger) *Handler {
	return &Handler{hub: hub, exists: exists, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/ws/vision/")
	sessionID := strings.TrimSuffix(path, "/")

	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	if h.exists != nil && !h.exists(sessionID) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[WS] upgrade error: %v", err)
		return
	}

	h.logger.Printf("[WS] new connection for session %s from %s", sessionID, r.RemoteAddr)
	h.hub.Register(sessionID, conn)
	go h.readPump(sessionID, conn)
}

// readPump drains the connection to detect disconnects and answers pings.
// Subscribers are not expected to send anything meaningful.
func (h *Handler) readPump(sessionID string, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(sessionID, conn)
		conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Printf("[WS] read error for session %s: %v", sessionID, err)
			}
			return
		}
	}
}
