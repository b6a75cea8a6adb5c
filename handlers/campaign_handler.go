package handlers

import (
	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/anjiri1684/chain_donate/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type CampaignView struct {
	*models.Campaign
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Subscribers      int             `json:"subscribers"`
}

type ChainerView struct {
	*models.Chainer
	AvailableCommission decimal.Decimal `json:"available_commission"`
}

type RepairAttributionRequest struct {
	ReferralCode string `json:"referral_code" validate:"required,max=16"`
}

func GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid campaign ID format")
	}
	campaign, err := services.GetCampaign(id)
	if err != nil {
		return respondError(c, err)
	}
	available, err := services.AvailableBalance(models.PayoutTypeCampaign, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(CampaignView{
		Campaign:         campaign,
		AvailableBalance: available,
		Subscribers:      websocket.SubscriberCount(id),
	})
}

func JoinCampaign(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid campaign ID format")
	}
	chainer, err := services.JoinCampaign(id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chainer)
}

func GetChainerStats(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid chainer ID format")
	}
	chainer, err := services.GetChainer(id)
	if err != nil {
		return respondError(c, err)
	}
	if chainer.UserID != userID && !middleware.IsAdmin(c) {
		return respondError(c, services.ErrForbidden)
	}
	available, err := services.AvailableBalance(models.PayoutTypeCommission, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ChainerView{Chainer: chainer, AvailableCommission: available})
}

func RepairChainerAttribution(c *fiber.Ctx) error {
	adminID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid campaign ID format")
	}
	var req RepairAttributionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	res, err := services.RepairChainerAttribution(id, req.ReferralCode, &adminID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// ServeCampaignWs streams aggregate updates for one campaign until the
// dashboard disconnects. Inbound frames are read only to detect the close.
func ServeCampaignWs(c *websocketcontrib.Conn) {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"error": "Invalid campaign ID format"})
		c.Close()
		return
	}
	campaign, err := services.GetCampaign(campaignID)
	if err != nil {
		_ = c.WriteJSON(fiber.Map{"error": "Campaign not found"})
		c.Close()
		return
	}

	client := &websocket.Client{CampaignID: campaignID, Conn: c}
	websocket.Register <- client
	defer func() {
		websocket.Unregister <- client
		c.Close()
	}()

	websocket.PublishCampaign(campaign)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			log.Debug().Err(err).Str("campaign_id", campaignID.String()).Msg("dashboard disconnected")
			return
		}
	}
}

// WebSocketUpgrade rejects plain HTTP requests on websocket routes.
func WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}
