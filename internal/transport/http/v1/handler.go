// Package v1 provides HTTP handlers for the session orchestrator.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/naiolune/zenithwell/internal/domain"
	"github.com/naiolune/zenithwell/internal/realtime"
	"github.com/naiolune/zenithwell/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	hub     *realtime.Hub
}

// NewHandler creates a new handler. The hub may be nil when no websocket
// feed is exposed.
func NewHandler(svc *service.Service, hub *realtime.Hub) *Handler {
	return &Handler{
		service: svc,
		hub:     hub,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session API
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.POST("/v1/sessions/:session_id/join", h.JoinSession)
	e.POST("/v1/sessions/:session_id/start", h.StartSession)
	e.POST("/v1/sessions/:session_id/lock", h.LockSession)
	e.POST("/v1/sessions/:session_id/unlock", h.UnlockSession)
	e.POST("/v1/sessions/:session_id/end", h.EndSession)

	// Messages and presence
	e.POST("/v1/sessions/:session_id/messages", h.SendMessage)
	e.GET("/v1/sessions/:session_id/messages", h.GetMessages)
	e.GET("/v1/sessions/:session_id/participants", h.GetParticipants)
	e.POST("/v1/sessions/:session_id/heartbeat", h.Heartbeat)
	e.POST("/v1/sessions/:session_id/ready", h.ToggleReady)

	if h.hub != nil {
		e.GET("/v1/sessions/:session_id/ws", h.ServeWS)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// userID extracts the caller identity. Authentication happens upstream;
// the orchestrator trusts the forwarded header.
func userID(c echo.Context) string {
	return c.Request().Header.Get("X-User-ID")
}

func userRole(c echo.Context) string {
	return c.Request().Header.Get("X-User-Role")
}

// rejectionStatus maps expected rejections to HTTP status codes.
func rejectionStatus(reason domain.RejectReason) int {
	switch reason {
	case domain.RejectSessionLocked, domain.RejectLockTerminal:
		return http.StatusLocked
	case domain.RejectNotOwner, domain.RejectNotParticipant:
		return http.StatusForbidden
	default:
		// TURN_IN_PROGRESS, CONSECUTIVE_SAME_SENDER, SESSION_WAITING,
		// SESSION_ENDED, WAITING_FOR_PARTICIPANTS, QUORUM_NOT_READY,
		// ALREADY_PENDING: the request conflicts with session state.
		return http.StatusConflict
	}
}

func respondError(c echo.Context, err error) error {
	if rej, ok := domain.AsRejection(err); ok {
		return c.JSON(rejectionStatus(rej.Reason), map[string]string{
			"error":  rej.Detail,
			"reason": string(rej.Reason),
		})
	}
	if errors.Is(err, service.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	if domain.IsInvariantViolation(err) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":  "session halted by invariant violation",
			"reason": "MALFORMED_HISTORY",
		})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
