package api

import (
	"os"

	"github.com/Abraxas-365/craftable/errx/errxfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/mygads/govconnect-channelgateway/pkg/config"
)

// NewApp builds the fiber app with the teacher's middleware stack
// (request id, access log, panic recovery, CORS, compression) and the
// errx-aware error handler, then mounts every route onto it.
func NewApp(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "GovConnect Channel Gateway",
		ServerHeader: "govconnect-channel-gateway",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errxfiber.FiberErrorHandler(),
	})

	app.Use(requestid.New())
	if cfg.Server.Environment != "test" {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
		}))
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Internal-API-Key",
		AllowCredentials: true,
	}))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	RegisterRoutes(app, deps)
	return app
}

func corsOrigins() string {
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:3000,http://127.0.0.1:3000"
}
