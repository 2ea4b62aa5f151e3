package broadcast

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// WSChannel is a Channel carried over a websocket connection to a relay
// Hub, giving cross-process contexts a broadcast path. The hub never echoes
// a message to its sender, matching the Channel contract.
type WSChannel struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int

	closeOnce sync.Once
}

var _ Channel = (*WSChannel)(nil)

// DialWS connects to a relay hub at url (ws:// or wss://).
func DialWS(url string, log zerolog.Logger) (*WSChannel, error) {
	if url == "" {
		return nil, errors.New("[broadcast.DialWS] url is required")
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[broadcast.DialWS] dialing "+url)
	}

	c := &WSChannel{conn: conn, log: log, handlers: map[int]Handler{}}
	go c.readLoop()
	return c, nil
}

// Post implements Channel.
func (c *WSChannel) Post(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "[WSChannel.Post] write")
	}
	return nil
}

// Subscribe implements Channel.
func (c *WSChannel) Subscribe(fn Handler) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

// Close closes the underlying connection. Idempotent.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *WSChannel) readLoop() {
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("relay connection closed")
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		c.mu.Lock()
		handlers := make([]Handler, 0, len(c.handlers))
		for _, fn := range c.handlers {
			handlers = append(handlers, fn)
		}
		c.mu.Unlock()

		for _, fn := range handlers {
			fn(payload)
		}
	}
}
