package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/linguahub-api/internal/config"
	"github.com/noah-isme/linguahub-api/internal/utils"
)

// ReadinessReporter reports whether shared broker connections are usable.
type ReadinessReporter interface {
	Ready() bool
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Realtime    string    `json:"realtime"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, connections ReadinessReporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		realtime := "local"
		if connections != nil && connections.Ready() {
			realtime = "ready"
		}

		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Realtime:    realtime,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
