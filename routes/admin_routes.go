package routes

import (
	"github.com/anjiri1684/chain_donate/handlers"
	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())

	payouts := admin.Group("/payouts")
	payouts.Get("", handlers.ListPayoutRequests)
	payouts.Post("/bulk", handlers.BulkUpdatePayoutRequests)
	payouts.Patch("/:payoutId", handlers.UpdatePayoutRequest)

	admin.Post("/campaigns/:id/chainers/repair", handlers.RepairChainerAttribution)
}
