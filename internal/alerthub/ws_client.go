package alerthub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// WebSocketClient implements Client over a gorilla websocket connection. Subscribers
// only receive; anything they send is discarded.
type WebSocketClient struct {
	ClientID string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan []byte

	logger    *slog.Logger
	closeOnce sync.Once
}

// NewWebSocketClient wraps conn for hub.
func NewWebSocketClient(id string, conn *websocket.Conn, hub *Hub, log *slog.Logger) *WebSocketClient {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketClient{
		ClientID: id,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan []byte, sendBuffer),
		logger:   log,
	}
}

func (c *WebSocketClient) ID() string { return c.ClientID }

func (c *WebSocketClient) SendChannel() chan<- []byte { return c.Send }

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump and closes the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("alert subscriber read failed",
					slog.String("client_id", c.ClientID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
