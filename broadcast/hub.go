package broadcast

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const clientSendBuffer = 16

// Hub is the relay side of the websocket channel: an http.Handler that
// upgrades connections and fans each incoming message out to every other
// connection. It enforces the channel's no-self-delivery rule, so clients
// need no echo filtering of their own.
//
// Delivery is best-effort: a client that cannot keep up has messages
// dropped rather than stalling the rest.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a relay hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The relay carries no credentials and no secrets; origin
			// checks are the host's concern if it wants them.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log,
		clients: map[*hubClient]struct{}{},
	}
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("relay upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", n).Msg("relay client connected")

	go h.writeLoop(client)
	h.readLoop(client)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) readLoop(client *hubClient) {
	defer h.drop(client)
	for {
		kind, payload, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		h.fanOut(client, payload)
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	for payload := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *Hub) fanOut(from *hubClient, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client == from {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.log.Debug().Msg("relay client backlogged, dropping message")
		}
	}
}

func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if present {
		close(client.send)
		_ = client.conn.Close()
		h.log.Debug().Msg("relay client disconnected")
	}
}
