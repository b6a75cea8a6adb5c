package handlers

import (
	"errors"

	"github.com/anjiri1684/chain_donate/payments"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// webhookReply acknowledges every authenticated delivery. Processing
// failures are stored with the event and never turned into provider
// retries.
func webhookReply(c *fiber.Ctx, res *services.WebhookResult, err error) error {
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message":   "Webhook received",
			"event_id":  res.EventID,
			"duplicate": res.Duplicate,
		})
	case services.IsSignatureError(err):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid webhook signature"})
	case errors.Is(err, payments.ErrUnknownProvider), errors.Is(err, payments.ErrNoDisburser):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Warn().Err(err).Str("path", c.Path()).Msg("webhook payload rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse webhook payload"})
	}
}

func HandleDonationWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	adapter, err := payments.Get(provider)
	if err != nil {
		return webhookReply(c, nil, err)
	}
	res, err := services.ProcessDonationWebhook(provider, c.Body(), c.Get(adapter.SignatureHeader()))
	return webhookReply(c, res, err)
}

func HandlePayoutWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	disburser, err := payments.GetDisburser()
	if err != nil {
		return webhookReply(c, nil, err)
	}
	res, err := services.ProcessPayoutWebhook(provider, c.Body(), c.Get(disburser.SignatureHeader()))
	return webhookReply(c, res, err)
}

func HandleKYCWebhook(c *fiber.Ctx) error {
	provider := services.KYCProvider()
	if provider == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "KYC provider not configured"})
	}
	res, err := services.ProcessKYCWebhook(c.Body(), c.Get(provider.SignatureHeader()))
	return webhookReply(c, res, err)
}
