package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"restockbot/backend/internal/alerthub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeAlerts upgrades the connection and subscribes it to approved alerts.
func (h *Handler) ServeAlerts(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := alerthub.NewWebSocketClient(uuid.NewString(), conn, h.Hub, h.logger)
	if !h.Hub.Register(client) {
		conn.Close()
	}
}
