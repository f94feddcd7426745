package router

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/study-artifacts/handlers"
	session_handlers "github.com/sahilchouksey/study-artifacts/handlers/session"
	"github.com/sahilchouksey/study-artifacts/utils/auth"
	"github.com/sahilchouksey/study-artifacts/utils/middleware"
)

// Handlers groups everything the routes dispatch to
type Handlers struct {
	Health  *handlers.HealthHandler
	Session *session_handlers.SessionHandler
	JWT     *auth.JWTManager
}

func SetupRoutes(app *fiber.App, h Handlers) {
	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		UnlimitedPaths:    []string{"/health"},
	})

	// Health check endpoint (public)
	app.Get("/health", h.Health.HandleCheckHealth)

	authMiddleware := middleware.NewAuthMiddleware(h.JWT)

	// API v1
	v1 := app.Group("/api/v1")

	// Processing sessions (protected)
	sessions := v1.Group("/sessions", authMiddleware.Required())
	sessions.Post("/", h.Session.CreateSession)
	sessions.Post("/:id/submit", h.Session.SubmitSession)
	sessions.Get("/:id/status", h.Session.GetStatus)
	sessions.Post("/:id/cancel", h.Session.CancelSession)
	sessions.Get("/:id/events", h.Session.StreamEvents)
}
