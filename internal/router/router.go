package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/linguahub-api/internal/config"
	"github.com/noah-isme/linguahub-api/internal/handler"
	"github.com/noah-isme/linguahub-api/internal/middleware"
	"github.com/noah-isme/linguahub-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RoomHandler         *handler.RoomHandler
	MessageHandler      *handler.MessageHandler
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	StudyGuideHandler   *handler.StudyGuideHandler
	Connections         handler.ReadinessReporter
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Connections))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware, middleware.RequireUser())

	// Rooms, membership and room-scoped messages
	if deps.RoomHandler != nil {
		rooms := v2.Group("/rooms")
		deps.RoomHandler.Register(rooms)

		if deps.MessageHandler != nil {
			deps.MessageHandler.RegisterRoomRoutes(rooms, middleware.RateLimit("chat-send", cfg.MessagesPerMinute, time.Minute))
		}
	}

	// Message lifecycle and receipts
	if deps.MessageHandler != nil {
		deps.MessageHandler.Register(v2.Group("/messages"))
	}

	// Realtime websocket
	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(v2.Group("/chat"))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(v2.Group("/notifications"))
	}

	if deps.StudyGuideHandler != nil {
		guides := v2.Group("/study-guides")
		guides.Use(middleware.RateLimit("study-guides", 10, time.Minute))
		deps.StudyGuideHandler.Register(guides)
	}
}
