package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"verisurebridge/internal/host"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientQueueLen = 64
)

// eventHub fans registry events out to WebSocket clients. Registry handlers
// run on the host loop, so broadcast never blocks: a client whose queue is
// full loses the event.
type eventHub struct {
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	unsubscribe func()

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newEventHub(registry host.Registry, logger *zap.Logger) *eventHub {
	h := &eventHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*eventClient]struct{}),
	}
	h.unsubscribe = registry.Subscribe(h.broadcast)
	return h
}

func (h *eventHub) broadcast(event host.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Dropping event for slow client",
				zap.String("remote_addr", client.conn.RemoteAddr().String()))
		}
	}
}

func (h *eventHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &eventClient{conn: conn, send: make(chan []byte, clientQueueLen)}
	if !h.add(client) {
		_ = conn.Close()
		return
	}

	h.logger.Debug("Event client connected", zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(client)
	h.readPump(client)
}

func (h *eventHub) add(client *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *eventHub) remove(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// readPump discards client messages and detects disconnects
func (h *eventHub) readPump(client *eventClient) {
	defer func() {
		h.remove(client)
		_ = client.conn.Close()
	}()

	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Event client read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *eventHub) writePump(client *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("Event client write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *eventHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close unsubscribes from the registry and disconnects every client
func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.unsubscribe()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
