// Package server assembles the HTTP application: middleware, routes and the
// websocket endpoint.
package server

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/infinitystory/humanstudy/internal/config"
	"github.com/infinitystory/humanstudy/internal/handler"
	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/service"
	ws "github.com/infinitystory/humanstudy/internal/websocket"
)

const (
	logFormat      = "[${time}] ${status} - ${latency} ${method} ${path}\n"
	logFormatDebug = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} | ${reqHeader:Authorization} | ${body} | ${resBody}\n"
)

// Pinger is a collaborator whose reachability is reported by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the routes need
type Deps struct {
	Config      *config.Config
	Sessions    *service.SessionService
	Exports     *service.ExportService
	Hub         *ws.Hub
	RateLimiter *middleware.RateLimiter
	Validate    *validator.Validate
	// Store is pinged by /health when set
	Store Pinger
	// Services lists which optional integrations are configured
	Services fiber.Map
	// Metrics serves the Prometheus scrape endpoint when set
	Metrics fiber.Handler
}

// New builds the fiber app with every route registered
func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(recover.New())
	format := logFormat
	if cfg.Server.LogLevel == "debug" {
		format = logFormatDebug
	}
	app.Use(logger.New(logger.Config{Format: format}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	studyHandler := handler.NewStudyHandler(d.Sessions)
	comparisonHandler := handler.NewComparisonHandler(d.Sessions, d.Validate)
	reviewHandler := handler.NewReviewHandler(d.Sessions, d.Validate)
	exportHandler := handler.NewExportHandler(d.Exports, d.Validate)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		storeOK := true
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
			defer cancel()
			storeOK = d.Store.Ping(ctx) == nil
		}
		if !storeOK || d.Sessions.ConfigError() != nil {
			status = "degraded"
		}

		services := fiber.Map{
			"store":  storeOK,
			"config": d.Sessions.ConfigError() == nil,
		}
		for k, v := range d.Services {
			services[k] = v
		}
		return c.JSON(fiber.Map{"status": status, "services": services})
	})

	if d.Metrics != nil {
		app.Get(cfg.Metrics.Path, d.Metrics)
	}

	app.Post("/auth/device", authHandler.Device)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/auth/refresh", authHandler.Refresh)
	api.Get("/config", studyHandler.Config)

	submitLimit := d.RateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin)

	comparison := api.Group("/comparison")
	comparison.Post("/start", comparisonHandler.Start)
	comparison.Get("/", comparisonHandler.View)
	comparison.Post("/submit", submitLimit, comparisonHandler.Submit)
	comparison.Get("/progress", comparisonHandler.Progress)
	comparison.Delete("/progress", comparisonHandler.ClearProgress)

	review := api.Group("/review")
	review.Post("/start", reviewHandler.Start)
	review.Get("/", reviewHandler.View)
	review.Post("/rating", submitLimit, reviewHandler.Rate)
	review.Post("/skip", submitLimit, reviewHandler.Skip)
	review.Post("/wholistic", submitLimit, reviewHandler.Wholistic)
	review.Post("/wholistic/skip", submitLimit, reviewHandler.SkipWholistic)
	review.Post("/video/previous", reviewHandler.PreviousVideo)
	review.Post("/video/next", reviewHandler.NextVideo)
	review.Get("/progress", reviewHandler.Progress)
	review.Delete("/progress", reviewHandler.ClearProgress)

	api.Post("/export", d.RateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour), exportHandler.Export)

	// Live views; the token comes from the query string
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/session", authMiddleware.Authenticate(), websocket.New(func(c *websocket.Conn) {
		deviceID, _ := c.Locals("deviceId").(string)
		d.Hub.HandleConnection(c, deviceID)
	}))

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
