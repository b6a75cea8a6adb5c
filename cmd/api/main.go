package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anjiri1684/chain_donate/bootstrap"
	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/jobs"
	"github.com/anjiri1684/chain_donate/routes"
	"github.com/anjiri1684/chain_donate/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
)

func main() {
	settings, err := bootstrap.Init(context.Background(), bootstrap.Options{
		AutoMigrate: config.Config("AUTO_MIGRATE") == "true",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	if settings.Cron.Enabled {
		scheduler, err := jobs.NewScheduler(settings.Cron)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid cron schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Info().Int("jobs", len(scheduler.Entries())).Msg("cron jobs scheduled")
	}

	go websocket.RunHub()
	app := newApp(settings)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", settings.Server.Port).Msg("server is running")
	if err := app.Listen(":" + settings.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func newApp(settings *config.Settings) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       settings.Server.AppName,
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   settings.Server.ReadTimeout.Duration,
		WriteTimeout:  settings.Server.WriteTimeout.Duration,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("request failed")
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  settings.Server.AllowOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Chain Donate API",
		})
	})

	routes.PublicRoutes(app)
	routes.DonationRoutes(app)
	routes.PayoutRoutes(app)
	routes.WebhookRoutes(app)
	routes.AdminRoutes(app)
	routes.CronRoutes(app)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	return app
}
