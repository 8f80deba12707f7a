// Package http exposes build sessions over a fiber HTTP API.
package http

import (
	"log/slog"
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// NewApp creates the fiber application and registers every route. A nil
// metrics handler leaves /metrics unregistered.
func NewApp(h *BuildHandler, metrics nethttp.Handler, bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          jsonErrorHandler(h.logger),
	})
	app.Use(recover.New())

	app.Get("/healthz", h.Health)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	api := app.Group("/api")
	v1 := api.Group("/v1")

	builds := v1.Group("/builds")
	builds.Get("/", h.ListBuilds)
	builds.Post("/", h.CreateBuild)
	builds.Post("/upload", h.UploadBuild)
	builds.Post("/github", h.GitHubBuild)
	builds.Get("/:id", h.GetBuild)

	v1.Post("/definitions/generate", h.GenerateDefinition)
	return app
}

func jsonErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", logfields.Path(c.Path()), logfields.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
