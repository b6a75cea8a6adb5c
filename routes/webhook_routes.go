package routes

import (
	"github.com/anjiri1684/chain_donate/handlers"
	"github.com/gofiber/fiber/v2"
)

// WebhookRoutes are authenticated by provider signatures, not JWTs.
func WebhookRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	webhooks := api.Group("/webhooks")
	webhooks.Post("/kyc", handlers.HandleKYCWebhook)
	webhooks.Post("/:provider/payouts", handlers.HandlePayoutWebhook)
	webhooks.Post("/:provider", handlers.HandleDonationWebhook)
}
