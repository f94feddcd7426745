package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HealthCheck checks one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports the state of the service's dependencies
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a health handler over the named checks
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HandleCheckHealth handles GET /health. Any failing dependency turns the
// answer into 503 with the failing component listed.
func (h *HealthHandler) HandleCheckHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	status := "ok"
	components := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			log.Warnf("Health check %s failed: %v", name, err)
			components[name] = "unavailable"
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "components": components})
}
