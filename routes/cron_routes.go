package routes

import (
	"github.com/anjiri1684/chain_donate/handlers"
	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/gofiber/fiber/v2"
)

func CronRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	cron := api.Group("/cron", middleware.CronSecret())
	cron.Post("/sweep", handlers.CronSweepDonations)
	cron.Post("/campaigns", handlers.CronCampaignLifecycle)
	cron.Post("/payouts", handlers.CronRetryPayouts)
	cron.Post("/outbox", handlers.CronDrainOutbox)
	cron.Post("/kv", handlers.CronPurgeKV)
}
