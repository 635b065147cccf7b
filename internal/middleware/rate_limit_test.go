package middleware_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/linguahub-api/internal/middleware"
)

func TestRateLimitRejectsBurstPerUser(t *testing.T) {
	app := appWithCaller(uint(5), "student")
	app.Post("/", middleware.RateLimit("messages", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	require.Equal(t, fiber.StatusCreated, perform(t, app, http.MethodPost, "/", nil).StatusCode)
	require.Equal(t, fiber.StatusCreated, perform(t, app, http.MethodPost, "/", nil).StatusCode)

	resp := perform(t, app, http.MethodPost, "/", nil)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decode(t, resp, &body)
	require.False(t, body.Success)
	require.Equal(t, "rate limit exceeded", body.Message)
}

func TestCorrelationIDPropagatesHeader(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID(zerolog.Nop()))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})

	resp := perform(t, app, http.MethodGet, "/", http.Header{"X-Request-ID": {"req-123"}})
	require.Equal(t, "req-123", resp.Header.Get("X-Correlation-ID"))

	generated := perform(t, app, http.MethodGet, "/", nil)
	require.NotEmpty(t, generated.Header.Get("X-Correlation-ID"))
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
