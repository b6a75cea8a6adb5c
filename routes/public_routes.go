package routes

import (
	"github.com/anjiri1684/chain_donate/handlers"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/campaigns/:id", handlers.GetCampaign)

	app.Use("/ws", handlers.WebSocketUpgrade)
	app.Get("/ws/campaigns/:id", websocket.New(handlers.ServeCampaignWs))
}
