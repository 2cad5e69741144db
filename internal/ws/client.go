package ws

import (
	"sync"
	"time"

	"ctm_arena/internal/domain"
	"ctm_arena/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one websocket subscriber.
type Client struct {
	Address   domain.Address
	SessionID uint32
	Conn      *websocket.Conn
	Send      chan []byte

	hub       *Hub
	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(addr domain.Address, sessionID uint32, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		Address:   addr,
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		hub:       hub,
		done:      make(chan struct{}),
	}
}

// Run subscribes the client and pumps until the connection drops.
func (c *Client) Run() {
	go c.writePump()

	c.hub.Subscribe(c)

	select {
	case c.Send <- []byte(`{"type":"ready"}`):
	case <-time.After(500 * time.Millisecond):
		logger.Warn("timeout queuing ready", "session_id", c.SessionID)
	}

	c.readPump()
}

// Close terminates the connection from the hub side.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

// readPump only consumes control frames; subscribers never send moves over
// the socket, moves go through the HTTP surface.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
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
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
