package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/naiolune/zenithwell/internal/domain"
)

type createSessionRequest struct {
	Kind     string `json:"kind"`
	Category string `json:"category,omitempty"`
}

// CreateSession creates a new session owned by the caller.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Kind == "" {
		req.Kind = string(domain.SessionKindIndividual)
	}

	session, err := h.service.CreateSession(c.Request().Context(), uid, domain.SessionKind(req.Kind), domain.SessionCategory(req.Category))
	if err != nil {
		if _, ok := domain.AsRejection(err); !ok {
			// Unknown kind comes back as a plain error.
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// GetSession retrieves a session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// JoinSession adds the caller as a participant.
// POST /v1/sessions/:session_id/join
func (h *Handler) JoinSession(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	participant, err := h.service.JoinSession(c.Request().Context(), c.Param("session_id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, participant)
}

// StartSession transitions waiting -> active. Owner only.
// POST /v1/sessions/:session_id/start
func (h *Handler) StartSession(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	session, err := h.service.StartSession(c.Request().Context(), c.Param("session_id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

type lockSessionRequest struct {
	Reason string `json:"reason"`
}

// LockSession locks a session with an administrative reason. Admin only.
// POST /v1/sessions/:session_id/lock
func (h *Handler) LockSession(c echo.Context) error {
	if userRole(c) != string(domain.RoleAdmin) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "admin role required"})
	}

	var req lockSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Reason == "" {
		req.Reason = domain.LockReasonManualReview
	}

	session, err := h.service.LockSession(c.Request().Context(), c.Param("session_id"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// UnlockSession reverses a non-terminal lock. Session owner or admin.
// POST /v1/sessions/:session_id/unlock
func (h *Handler) UnlockSession(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "X-User-ID header is required"})
	}

	isAdmin := userRole(c) == string(domain.RoleAdmin)
	session, err := h.service.UnlockSession(c.Request().Context(), c.Param("session_id"), uid, isAdmin)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// EndSession ends a session. Admin only; terminal.
// POST /v1/sessions/:session_id/end
func (h *Handler) EndSession(c echo.Context) error {
	if userRole(c) != string(domain.RoleAdmin) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "admin role required"})
	}

	session, err := h.service.EndSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}
