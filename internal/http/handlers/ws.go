package handlers

import (
	"errors"
	"net/http"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"
	"mindmeld/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the API is origin-agnostic; tokens gate mutation, the view is
	// readable by anyone holding the session code
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WS handles GET /ws/:code, a live view of one session.
func (h *SessionHandler) WS(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if _, err := h.Sessions.View(c.Request.Context(), code); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			respondError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Debug("ws upgrade failed", "error", err)
			return
		}

		client := ws.NewClient(code, conn)
		room := hub.Join(client)
		client.Run(room)
	}
}
