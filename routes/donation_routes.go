package routes

import (
	"github.com/anjiri1684/chain_donate/handlers"
	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/gofiber/fiber/v2"
)

func DonationRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	donations := api.Group("/donations", middleware.Protected())
	donations.Post("", handlers.CreateDonation)
	donations.Get("/:donationId", handlers.GetDonation)
	donations.Get("/:donationId/status", handlers.CheckDonationStatus)
	donations.Post("/:donationId/retry", handlers.RetryDonation)

	// /campaigns is otherwise public, so no group middleware here.
	api.Post("/campaigns/:id/join", middleware.Protected(), handlers.JoinCampaign)
	api.Get("/chainers/:id/stats", middleware.Protected(), handlers.GetChainerStats)
}
