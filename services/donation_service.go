package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreateDonationInput struct {
	CampaignID   uuid.UUID
	DonorID      uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	Provider     string
	ReferralCode string
	PayerPhone   string
}

// CreateDonation records a pending donation and starts the provider charge.
// The donation row exists before the provider is called, so an initiation
// that fails leaves a reference-less pending row for the abandon sweep.
func CreateDonation(ctx context.Context, in CreateDonationInput) (*models.Donation, *payments.Initiation, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, businessError("invalid_amount", ErrInvalidAmount)
	}
	adapter, err := payments.Get(in.Provider)
	if err != nil {
		return nil, nil, businessError("unknown_provider", err)
	}

	campaign, err := GetCampaign(in.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	if campaign.Status != models.CampaignStatusActive && campaign.Status != models.CampaignStatusGoalReached {
		return nil, nil, businessError("campaign_not_active", ErrCampaignNotActive)
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = campaign.Currency
	}
	if currency != campaign.Currency {
		return nil, nil, businessError("currency_mismatch", ErrCurrencyMismatch)
	}
	if adapter.Name() == payments.ProviderBankRail && !in.Amount.IsInteger() {
		return nil, nil, businessError("invalid_amount", payments.ErrFractionalAmount)
	}

	now := time.Now()
	donation := models.Donation{
		CampaignID:       campaign.ID,
		DonorID:          in.DonorID,
		Amount:           in.Amount.Round(2),
		Currency:         currency,
		Provider:         adapter.Name(),
		Status:           models.DonationStatusPending,
		LastStatusUpdate: now,
		AttemptStartedAt: now,
	}

	if code := strings.ToUpper(strings.TrimSpace(in.ReferralCode)); code != "" {
		donation.ReferralCode = &code
		var chainer models.Chainer
		err := database.DB.Where("campaign_id = ? AND referral_code = ? AND status = ?", campaign.ID, code, models.ChainerStatusActive).
			First(&chainer).Error
		switch {
		case err == nil:
			donation.ChainerID = &chainer.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warn().Str("campaign_id", campaign.ID.String()).Str("referral_code", code).Msg("referral code did not match an active chainer")
		default:
			return nil, nil, err
		}
	}

	if err := database.DB.Omit(clause.Associations).Create(&donation).Error; err != nil {
		return nil, nil, fmt.Errorf("create donation: %w", err)
	}

	init, err := StartCharge(ctx, &donation, in.PayerPhone)
	if err != nil {
		return &donation, nil, err
	}
	return &donation, init, nil
}

// StartCharge asks the provider to begin collecting a pending donation and
// stores the issued reference.
func StartCharge(ctx context.Context, d *models.Donation, payerPhone string) (*payments.Initiation, error) {
	adapter, err := payments.Get(d.Provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.App.Sweeper.PollTimeout.Duration)
	defer cancel()
	init, err := adapter.Initiate(ctx, payments.InitiateRequest{
		DonationID:  d.ID,
		Attempt:     d.Attempt,
		Amount:      d.Amount,
		Currency:    d.Currency,
		PayerPhone:  payerPhone,
		Description: "Donation " + d.ID.String()[:8],
	})
	if err != nil {
		log.Error().Err(err).Str("donation_id", d.ID.String()).Str("provider", d.Provider).Msg("payment initiation failed")
		if payments.IsValidation(err) {
			return nil, businessError("payment_rejected", err)
		}
		return nil, err
	}

	res := database.DB.Model(&models.Donation{}).
		Where("id = ? AND status = ? AND provider_reference IS NULL", d.ID, models.DonationStatusPending).
		Updates(map[string]interface{}{"provider_reference": init.ProviderReference, "last_status_update": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		log.Warn().Str("donation_id", d.ID.String()).Str("reference", init.ProviderReference).Msg("donation moved before the charge reference was stored")
		return nil, businessError("charge_superseded", ErrChargeSuperseded)
	}
	ref := init.ProviderReference
	d.ProviderReference = &ref
	log.Info().Str("donation_id", d.ID.String()).Str("provider", d.Provider).Str("reference", ref).Msg("payment initiated")
	return init, nil
}

// RetryAndRecharge runs the donor retry and immediately starts a new charge.
func RetryAndRecharge(ctx context.Context, donationID, actorID uuid.UUID, payerPhone string) (*models.Donation, *payments.Initiation, error) {
	d, err := RetryDonation(donationID, actorID)
	if err != nil {
		return nil, nil, err
	}
	init, err := StartCharge(ctx, d, payerPhone)
	if err != nil {
		return d, nil, err
	}
	return d, init, nil
}

func pollThrottleKey(id uuid.UUID) string { return "poll:" + id.String() }

// CheckDonationStatus returns the donation, polling the provider first when
// it is still pending. Polls are throttled per donation across instances.
func CheckDonationStatus(ctx context.Context, donationID uuid.UUID) (*models.Donation, error) {
	d, err := GetDonation(donationID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DonationStatusPending || d.ProviderReference == nil {
		return d, nil
	}

	allowed, err := KVSetNX(pollThrottleKey(d.ID), "1", config.App.Sweeper.PollThrottle.Duration)
	if err != nil {
		log.Warn().Err(err).Str("donation_id", d.ID.String()).Msg("poll throttle unavailable")
		return d, nil
	}
	if !allowed {
		return d, nil
	}

	adapter, err := payments.Get(d.Provider)
	if err != nil {
		return nil, err
	}
	outcome, err := pollDonation(ctx, adapter, d)
	if err != nil {
		if payments.IsTransient(err) {
			return RecordTransientError(d.ID, err, SourcePoll)
		}
		log.Warn().Err(err).Str("donation_id", d.ID.String()).Msg("status poll rejected by provider")
		return d, nil
	}
	if outcome.ProviderReference == "" {
		outcome.ProviderReference = d.Reference()
	}

	res, err := ApplyOutcome(d.ID, outcome, SourcePoll)
	if err != nil {
		return nil, err
	}
	return res.Donation, nil
}
