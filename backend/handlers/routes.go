package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts the API on app. Scoring and the read-only dashboard views
// are public; history, export and account management need a token.
func Register(app *fiber.App, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// ===== Public Routes (No Auth Required) =====
	api.Post("/login", h.Login)
	api.Post("/predict", h.Predict)
	api.Get("/insights", h.GetInsights)
	api.Get("/ledger/alerts", h.GetRecentAlerts)
	api.Get("/ledger/status", h.GetLedgerStatus)
	api.Get("/status", h.GetSystemStatus)

	// ===== Protected Routes (JWT Required) =====
	protected := api.Group("", h.JWTAuthMiddleware())

	// Auth
	protected.Put("/auth/password", h.ChangePassword)

	// History
	protected.Get("/predictions", h.GetPredictions)
	protected.Get("/predictions/stats", h.GetPredictionStats)
	protected.Get("/predictions/export", h.ExportPredictions)
	protected.Get("/predictions/:id", h.GetPrediction)

	// Events
	protected.Get("/events", h.GetEvents)

	// User Management
	protected.Get("/users", h.GetUsers)
	protected.Post("/users", h.CreateUser)
	protected.Delete("/users/:id", h.DeleteUser)

	// Webhook
	protected.Post("/webhook/test", h.TestWebhook)
}

// TestWebhook sends a test message to the configured Discord webhook.
// POST /api/webhook/test
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	if h.Webhook == nil || !h.Webhook.IsEnabled() {
		return c.Status(400).JSON(fiber.Map{"error": "Webhook not configured"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	if err := h.Webhook.SendTestAlert(ctx); err != nil {
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"message": "Test alert sent"})
}
