// Package http provides the HTTP server implementation for the orchestrator.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/naiolune/zenithwell/internal/realtime"
	"github.com/naiolune/zenithwell/internal/service"
	v1 "github.com/naiolune/zenithwell/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. It serves the session
// API and the per-session websocket feed.
func NewServer(svc *service.Service, hub *realtime.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, hub)

	// Register Routes
	v1Handler.RegisterRoutes(e)

	return e
}
