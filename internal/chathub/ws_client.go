package chathub

import (
	"anonchat/backend/internal/models"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// WebSocketClient реалізує інтерфейс chathub.Client поверх gorilla/websocket.
// Only writePump writes to Conn once the pumps are running.
type WebSocketClient struct {
	sessionID string
	userID    string
	username  string

	Conn *websocket.Conn
	send chan models.ServerEvent
	done chan struct{}

	closeOnce   sync.Once
	cleanupOnce sync.Once
	log         *slog.Logger
}

func NewWebSocketClient(conn *websocket.Conn, userID, username string, buffer int, logger *slog.Logger) *WebSocketClient {
	sessionID := uuid.NewString()
	return &WebSocketClient{
		sessionID: sessionID,
		userID:    userID,
		username:  username,
		Conn:      conn,
		send:      make(chan models.ServerEvent, buffer),
		done:      make(chan struct{}),
		log:       logger.With("session_id", sessionID, "user_id", userID),
	}
}

func (c *WebSocketClient) GetSessionID() string { return c.sessionID }
func (c *WebSocketClient) GetUserID() string    { return c.userID }
func (c *WebSocketClient) GetUsername() string  { return c.username }

func (c *WebSocketClient) Send(ev models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.log.Warn("ws client - send - buffer full, dropping event", "type", ev.Type)
		return false
	}
}

// Close signals both pumps to stop. The send channel is never closed, so a
// concurrent Send cannot panic.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

// readPump blocks until the connection fails, handing every text frame to
// handle in arrival order.
func (c *WebSocketClient) readPump(handle func([]byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("ws client - read - unexpected close", "err", err)
			}
			return
		}
		handle(message)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				c.log.Debug("ws client - write - failed", "type", ev.Type, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
