package handlers

import (
	"time"

	"github.com/anjiri1684/chain_donate/middleware"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateDonationRequest struct {
	CampaignID   string          `json:"campaign_id" validate:"required,uuid"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	Provider     string          `json:"provider" validate:"required,oneof=card_rail bank_rail"`
	ReferralCode string          `json:"referral_code" validate:"omitempty,max=16"`
	PhoneNumber  string          `json:"phone_number"`
}

type RetryDonationRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// DonationView is the donor-facing shape of a donation.
type DonationView struct {
	*models.Donation
	FailureMessage string `json:"failure_message,omitempty"`
	CanRetry       bool   `json:"can_retry"`
	RedirectURL    string `json:"redirect_url,omitempty"`
}

func donationView(d *models.Donation, init *payments.Initiation) DonationView {
	v := DonationView{Donation: d, CanRetry: services.RetryEligible(d, time.Now())}
	if d.FailureReason != nil {
		v.FailureMessage = d.FailureReason.Message()
	}
	if init != nil {
		v.RedirectURL = init.RedirectURL
	}
	return v
}

func CreateDonation(c *fiber.Ctx) error {
	donorID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req CreateDonationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Provider == payments.ProviderBankRail && req.PhoneNumber == "" {
		return badRequest(c, "phone_number is required for bank_rail donations")
	}

	d, init, err := services.CreateDonation(c.UserContext(), services.CreateDonationInput{
		CampaignID:   uuid.MustParse(req.CampaignID),
		DonorID:      donorID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Provider:     req.Provider,
		ReferralCode: req.ReferralCode,
		PayerPhone:   req.PhoneNumber,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(donationView(d, init))
}

func GetDonation(c *fiber.Ctx) error {
	d, err := ownedDonation(c)
	if err != nil || d == nil {
		return err
	}
	return c.JSON(donationView(d, nil))
}

// CheckDonationStatus polls the provider when the donation is still
// pending and returns the reconciled status.
func CheckDonationStatus(c *fiber.Ctx) error {
	d, err := ownedDonation(c)
	if err != nil || d == nil {
		return err
	}
	d, err = services.CheckDonationStatus(c.UserContext(), d.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(donationView(d, nil))
}

func RetryDonation(c *fiber.Ctx) error {
	donorID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("donationId"))
	if err != nil {
		return badRequest(c, "Invalid donation ID format")
	}

	var req RetryDonationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Cannot parse JSON")
		}
	}

	d, init, err := services.RetryAndRecharge(c.UserContext(), id, donorID, req.PhoneNumber)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(donationView(d, init))
}

// ownedDonation loads the donation named in the path for its donor or an
// admin. A nil donation with nil error means the response was written.
func ownedDonation(c *fiber.Ctx) (*models.Donation, error) {
	userID, err := middleware.UserID(c)
	if err != nil {
		return nil, unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("donationId"))
	if err != nil {
		return nil, badRequest(c, "Invalid donation ID format")
	}
	d, err := services.GetDonation(id)
	if err != nil {
		return nil, respondError(c, err)
	}
	if d.DonorID != userID && !middleware.IsAdmin(c) {
		return nil, respondError(c, services.ErrForbidden)
	}
	return d, nil
}
