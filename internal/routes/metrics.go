package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/congo-pay/token_vault/internal/metrics"
)

// RegisterMetricsRoute exposes the Prometheus scrape endpoint.
func RegisterMetricsRoute(app *fiber.App, reg *metrics.Registry) {
	app.Get("/metrics", adaptor.HTTPHandler(reg.Handler()))
}
