package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Its membership fields are set once a
// createRoom or joinRoom succeeds.
type Client struct {
	conn    *connWrapper
	Message chan *WSMessage
	ID      string

	mu       sync.RWMutex
	roomID   string
	username string
	isAdmin  bool

	leaveOnce sync.Once
}

func NewClient(conn *websocket.Conn, id string, cfg Config) *Client {
	return &Client{
		conn:    newConnWrapper(conn, cfg.WriteTimeout),
		Message: make(chan *WSMessage, cfg.SendBuffer),
		ID:      id,
	}
}

func (c *Client) Membership() (roomID, username string, isAdmin bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.username, c.isAdmin
}

func (c *Client) joined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID != ""
}

func (c *Client) setMembership(roomID, username string, isAdmin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.username = username
	c.isAdmin = isAdmin
}

// readPump feeds inbound frames to handle until the connection fails.
func (c *Client) readPump(cfg Config, handle func(raw []byte), onUnexpectedClose func(error)) {
	c.conn.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				onUnexpectedClose(err)
			}
			return
		}
		_ = c.conn.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		handle(raw)
	}
}

// writePump drains Message until it is closed, pinging on an interval.
func (c *Client) writePump(cfg Config, onError func(error)) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Message:
			if !ok {
				_ = c.conn.WriteClose()
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				onError(err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WritePing(); err != nil {
				onError(err)
				return
			}
		}
	}
}
