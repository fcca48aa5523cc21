package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

var startTime = time.Now()

// Health reports store connectivity, bus connectivity, and breaker states
// for the provider's two control planes (SPEC_FULL.md §5's supplemented
// health endpoint).
func (d *Dependencies) Health(c *fiber.Ctx) error {
	dbErr := d.Store.Ping(c.Context())
	busUp := d.Bus.IsConnected()

	healthy := dbErr == nil && busUp

	status := "healthy"
	code := fiber.StatusOK
	if !healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"uptime": time.Since(startTime).String(),
		"checks": fiber.Map{
			"database":          dbErr == nil,
			"bus":               busUp,
			"gateway_breaker":   d.Provider.GatewayBreakerState(),
			"support_breaker":   d.Provider.SupportBreakerState(),
		},
	})
}
