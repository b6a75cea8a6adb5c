package routes

import (
	"github.com/anjiri1684/chain_donate/handlers"
	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/gofiber/fiber/v2"
)

func PayoutRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	payouts := api.Group("/payouts", middleware.Protected())
	payouts.Post("", handlers.RequestPayout)
	payouts.Get("/:payoutId", handlers.GetPayout)
}
