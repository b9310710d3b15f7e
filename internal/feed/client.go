package feed

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one websocket subscriber.
type client struct {
	id     string
	filter Filter
	send   chan []byte
	conn   *websocket.Conn

	done     chan struct{}
	stopOnce sync.Once
}

// stop ends the write loop. Safe to call more than once.
func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// writeLoop is the only writer of conn.
func (c *client) writeLoop(cfg Config) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound messages and returns when the peer goes away
// or stops answering pings.
func (c *client) readLoop(cfg Config) {
	readTimeout := 2 * cfg.PingInterval
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
