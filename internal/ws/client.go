package ws

import (
	"time"

	"mindmeld/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one live-view connection. The session is mutated over the REST
// API; the socket only carries state pushes, so the read pump exists to
// service pings and detect disconnects.
type Client struct {
	SessionCode string
	Conn        *websocket.Conn
	Send        chan []byte

	room *Room
	done chan struct{}
}

func NewClient(sessionCode string, conn *websocket.Conn) *Client {
	return &Client{
		SessionCode: sessionCode,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		done:        make(chan struct{}),
	}
}

// Run pumps until the peer disconnects.
func (c *Client) Run(room *Room) {
	c.room = room
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.room.Unregister <- c:
		case <-time.After(2 * time.Second):
			// room already gone
		}
		close(c.done)
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
		// inbound payloads are ignored; state changes go through the API
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws write failed", "session", c.SessionCode, "error", err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
