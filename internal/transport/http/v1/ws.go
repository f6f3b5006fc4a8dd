package v1

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks happen at the edge.
		return true
	},
}

// ServeWS upgrades the connection and attaches it to the session's event
// feed.
// GET /v1/sessions/:session_id/ws
func (h *Handler) ServeWS(c echo.Context) error {
	sessionID := c.Param("session_id")
	if _, err := h.service.GetSession(c.Request().Context(), sessionID); err != nil {
		return respondError(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	h.hub.Attach(ws, sessionID, userID(c))
	return nil
}
