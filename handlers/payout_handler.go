package handlers

import (
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreatePayoutRequest struct {
	Type        string          `json:"type" validate:"required,oneof=campaign commission"`
	TargetID    string          `json:"target_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination" validate:"required,max=64"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

type PayoutActionRequest struct {
	Action            string `json:"action" validate:"required,oneof=approve reject process complete fail pay retry"`
	Reason            string `json:"reason" validate:"max=2000"`
	Notes             string `json:"notes" validate:"max=1000"`
	ProviderReference string `json:"provider_reference" validate:"max=255"`
}

type BulkPayoutActionRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,uuid"`
	PayoutActionRequest
}

func RequestPayout(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req CreatePayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	p, err := services.RequestPayout(services.CreatePayoutInput{
		Type:        models.PayoutType(req.Type),
		RequesterID: userID,
		TargetID:    uuid.MustParse(req.TargetID),
		Amount:      req.Amount,
		Destination: req.Destination,
		Notes:       req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func GetPayout(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("payoutId"))
	if err != nil {
		return badRequest(c, "Invalid payout ID format")
	}
	p, err := services.GetPayout(id)
	if err != nil {
		return respondError(c, err)
	}
	if p.RequesterID != userID && !middleware.IsAdmin(c) {
		return respondError(c, services.ErrForbidden)
	}
	return c.JSON(p)
}

func ListPayoutRequests(c *fiber.Ctx) error {
	query := database.DB.Order("requested_at ASC").Limit(c.QueryInt("limit", 100))
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}

	var requests []models.PayoutRequest
	if err := query.Find(&requests).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(requests)
}

func actionInput(c *fiber.Ctx, req PayoutActionRequest) (services.PayoutActionInput, error) {
	adminID, err := middleware.UserID(c)
	if err != nil {
		return services.PayoutActionInput{}, err
	}
	return services.PayoutActionInput{
		Action:            services.PayoutAction(req.Action),
		ActorID:           adminID,
		Reason:            req.Reason,
		Notes:             req.Notes,
		ProviderReference: req.ProviderReference,
	}, nil
}

func UpdatePayoutRequest(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("payoutId"))
	if err != nil {
		return badRequest(c, "Invalid payout ID format")
	}
	var req PayoutActionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	in, err := actionInput(c, req)
	if err != nil {
		return unauthorized(c)
	}

	p, err := services.ApplyPayoutAction(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

func BulkUpdatePayoutRequests(c *fiber.Ctx) error {
	var req BulkPayoutActionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	in, err := actionInput(c, req.PayoutActionRequest)
	if err != nil {
		return unauthorized(c)
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	results := services.BulkPayoutAction(c.UserContext(), ids, in)

	succeeded := 0
	for _, r := range results {
		if r.Error == "" {
			succeeded++
		}
	}
	return c.JSON(fiber.Map{"results": results, "succeeded": succeeded, "failed": len(results) - succeeded})
}
