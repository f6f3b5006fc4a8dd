package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage runs one turn and returns the assistant reply.
// POST /v1/sessions/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	reply, err := h.service.SendMessage(c.Request().Context(), c.Param("session_id"), uid, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"assistant_message": reply,
	})
}

// GetMessages retrieves the committed history for a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetMessages(c echo.Context) error {
	messages, err := h.service.History(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// GetParticipants retrieves participants with derived presence.
// GET /v1/sessions/:session_id/participants
func (h *Handler) GetParticipants(c echo.Context) error {
	participants, err := h.service.Participants(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"participants": participants,
	})
}

// Heartbeat records a presence heartbeat for the caller.
// POST /v1/sessions/:session_id/heartbeat
func (h *Handler) Heartbeat(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	status, err := h.service.Heartbeat(c.Request().Context(), c.Param("session_id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"presence_status": string(status),
	})
}

// ToggleReady flips the caller's readiness.
// POST /v1/sessions/:session_id/ready
func (h *Handler) ToggleReady(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	ready, err := h.service.ToggleReady(c.Request().Context(), c.Param("session_id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ready": ready})
}
