package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and hands the socket to the gateway.
// The token may come as a bearer header, as ?token=, or later as the first
// frame; the gateway checks it either way.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		token = c.Query("token")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("handler - ServeWebSocket - upgrade failed", "err", err)
		return
	}

	h.Gateway.Serve(conn, token)
}
