package handlers

import (
	"errors"

	"github.com/anjiri1684/chain_donate/payments"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	var be *services.BusinessError
	switch {
	case errors.Is(err, services.ErrDonationNotFound),
		errors.Is(err, services.ErrCampaignNotFound),
		errors.Is(err, services.ErrChainerNotFound),
		errors.Is(err, services.ErrPayoutNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": "invalid_transition"})
	case errors.As(err, &be):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": be.Message, "code": be.Code})
	case payments.IsTransient(err):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment provider unavailable, try again"})
	}
	log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user in token"})
}
