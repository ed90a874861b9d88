package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxMessageSize      = 4096
)

// client is one websocket connection. Inbound frames are read only to
// process control messages.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	rooms []string
	send  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn, rooms []string) *client {
	return &client{
		hub:   h,
		conn:  conn,
		rooms: rooms,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
}

func (c *client) writeTimeout() time.Duration {
	if c.hub.cfg.WriteTimeout > 0 {
		return c.hub.cfg.WriteTimeout
	}
	return defaultWriteTimeout
}

func (c *client) pingInterval() time.Duration {
	if c.hub.cfg.PingInterval > 0 {
		return c.hub.cfg.PingInterval
	}
	return defaultPingInterval
}

// readPump blocks until the peer goes away, then unregisters the client
func (c *client) readPump() {
	defer c.close()

	pongWait := c.pingInterval() * 2
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.unregister(c)
		c.conn.Close()
	})
}
