// Package stream pushes finished turns to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"megamarket/internal/market"
)

const (
	writeWait = 5 * time.Second
	backlog   = 64
	readLimit = 512
	typeTurn  = "turn"
	typeHello = "hello"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the envelope written to every subscriber.
type Message struct {
	Type string `json:"type"`
	Turn int    `json:"turn"`
	Data any    `json:"data,omitempty"`
}

type Hub struct {
	log       *slog.Logger
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:       logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, backlog),
	}
}

// Run writes queued messages to every client until ctx is done, then closes
// all connections.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case message := <-h.broadcast:
			h.lock.Lock()
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log.Debug("dropping stream client", "remote", client.RemoteAddr().String(), "err", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Publish queues a turn report. It never blocks: when the backlog is full the
// report is dropped and a warning logged.
func (h *Hub) Publish(report market.TurnReport) {
	raw, err := json.Marshal(Message{Type: typeTurn, Turn: report.Turn, Data: report})
	if err != nil {
		h.log.Error("encode turn report", "turn", report.Turn, "err", err)
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		h.log.Warn("stream backlog full, dropping turn", "turn", report.Turn)
	}
}

func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Handler upgrades the request and registers the connection. The current
// turn is sent in a hello message so clients know where they joined.
func (h *Hub) Handler(turn func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", "err", err)
			return
		}
		current := 0
		if turn != nil {
			current = turn()
		}

		// hello must reach the client before any broadcast does
		h.lock.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Message{Type: typeHello, Turn: current}); err != nil {
			h.lock.Unlock()
			conn.Close()
			return
		}
		h.clients[conn] = true
		h.lock.Unlock()
		h.log.Debug("stream client joined", "remote", conn.RemoteAddr().String())

		go h.readLoop(conn)
	}
}

// readLoop discards inbound frames and unregisters the client once the peer
// goes away.
func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.lock.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
	h.lock.Unlock()
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		client.Close()
		delete(h.clients, client)
	}
}
