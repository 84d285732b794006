package handlers

import (
	"log/slog"
	"net/http"

	"poll-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
// Clients identify themselves by query parameter: /api/v1/ws?userId=u1
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		slog.Warn("WebSocket connection rejected: missing userId parameter")
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId parameter is required"})
		return
	}

	websocket.ServeWS(h.hub, c.Writer, c.Request, userID)
}
