package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts the quote, fee registry and metrics routes on app.
func Register(app *fiber.App, quotes *QuoteHandler, fees *FeeHandler, gatherer prometheus.Gatherer) {
	app.Get("/quote/decompose", quotes.Decompose())
	app.Get("/quote/partition", quotes.Partition())
	app.Get("/quote/rebalance", quotes.Rebalance())
	app.Get("/quote/removal", quotes.Removal())

	app.Get("/fees", fees.Registry())
	app.Get("/fees/:factory", fees.Get())
	app.Put("/fees/:factory", fees.Set())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
