package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sonexa/logger"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventMessage is the wire shape pushed to connected clients.
type eventMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Hub fans core events out to websocket clients. It implements
// notify.Notifier; emitting never blocks the core — slow clients are
// dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan eventMessage
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan eventMessage)}
}

// Emit broadcasts the event to every connected client.
func (h *Hub) Emit(event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.clients {
		select {
		case ch <- eventMessage{Event: event, Payload: payload}:
		default:
			// Client is not keeping up; disconnect it rather than
			// stalling the sender.
			logger.Warn("dropping slow websocket client")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// HandleWS upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	ch := make(chan eventMessage, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	logger.Info("websocket client connected", logger.String("addr", r.RemoteAddr))

	// Reader: we ignore inbound messages but need the read loop to detect
	// disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()

	for msg := range ch {
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Error("failed to encode event", logger.ErrorField(err))
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}
