package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/kyc"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayloadArchiver keeps a copy of raw webhook bodies outside the database.
type PayloadArchiver interface {
	Archive(ctx context.Context, provider, eventID string, body []byte) error
}

var (
	archiverMu sync.RWMutex
	archiver   PayloadArchiver
)

func SetPayloadArchiver(a PayloadArchiver) {
	archiverMu.Lock()
	defer archiverMu.Unlock()
	archiver = a
}

func archivePayload(provider, eventID string, body []byte) {
	archiverMu.RLock()
	a := archiver
	archiverMu.RUnlock()
	if a == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Archive(ctx, provider, eventID, body); err != nil {
			log.Warn().Err(err).Str("provider", provider).Str("event_id", eventID).Msg("webhook payload archive failed")
		}
	}()
}

type WebhookResult struct {
	EventID   string           `json:"event_id"`
	Duplicate bool             `json:"duplicate"`
	Ignored   bool             `json:"ignored,omitempty"`
	Donation  *models.Donation `json:"-"`
	Error     string           `json:"-"`
}

// recordWebhook stores the event once. It returns false when the provider
// already delivered this event id, unless processing of the earlier delivery
// failed: then this delivery claims the stored event and processes it again.
func recordWebhook(provider, eventID, eventType string, body []byte) (*models.WebhookEvent, bool, error) {
	record := models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         datatypes.JSON(body),
		SignatureValid:  true,
	}
	res := database.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return reclaimFailedWebhook(provider, eventID)
	}
	archivePayload(provider, eventID, body)
	return &record, true, nil
}

func reclaimFailedWebhook(provider, eventID string) (*models.WebhookEvent, bool, error) {
	res := database.DB.Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ? AND processing_error IS NOT NULL", provider, eventID).
		Updates(map[string]interface{}{"processing_error": nil, "processed_at": nil})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	var record models.WebhookEvent
	if err := database.DB.Where("provider = ? AND provider_event_id = ?", provider, eventID).First(&record).Error; err != nil {
		return nil, false, err
	}
	log.Info().Str("provider", provider).Str("event_id", eventID).Msg("reprocessing webhook that previously failed")
	return &record, true, nil
}

func finishWebhook(record *models.WebhookEvent, procErr error) {
	updates := map[string]interface{}{"processed_at": time.Now()}
	if procErr != nil {
		updates["processing_error"] = procErr.Error()
	}
	if err := database.DB.Model(&models.WebhookEvent{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		log.Error().Err(err).Str("webhook_id", record.ID.String()).Msg("failed to mark webhook processed")
	}
}

// ProcessDonationWebhook verifies, records and reconciles one donation
// webhook. Processing errors are kept on the stored event and reported in
// the result; only signature and parse failures are returned as errors.
func ProcessDonationWebhook(provider string, body []byte, signature string) (*WebhookResult, error) {
	adapter, err := payments.Get(provider)
	if err != nil {
		return nil, err
	}

	ev, err := adapter.ParseWebhook(body, signature)
	ignored := errors.Is(err, payments.ErrIgnoredEvent)
	if err != nil && !ignored {
		if errors.Is(err, payments.ErrInvalidSignature) {
			log.Warn().Str("provider", provider).Msg("webhook signature rejected")
		}
		return nil, err
	}

	record, fresh, err := recordWebhook(provider, ev.EventID, ev.EventType, body)
	if err != nil {
		return nil, err
	}
	result := &WebhookResult{EventID: ev.EventID, Ignored: ignored}
	if !fresh {
		result.Duplicate = true
		log.Debug().Str("provider", provider).Str("event_id", ev.EventID).Msg("duplicate webhook acknowledged")
		return result, nil
	}
	if ignored {
		finishWebhook(record, nil)
		return result, nil
	}

	procErr := func() error {
		donationID, err := resolveDonation(provider, ev)
		if err != nil {
			return err
		}
		applied, err := ApplyOutcome(donationID, ev.Outcome, SourceWebhook)
		if err != nil {
			return err
		}
		result.Donation = applied.Donation
		return nil
	}()
	finishWebhook(record, procErr)
	if procErr != nil {
		result.Error = procErr.Error()
		log.Error().Err(procErr).Str("provider", provider).Str("event_id", ev.EventID).Msg("webhook processing failed")
	}
	return result, nil
}

func resolveDonation(provider string, ev *payments.WebhookEvent) (uuid.UUID, error) {
	if ev.DonationID != nil {
		return *ev.DonationID, nil
	}
	if ev.Outcome.ProviderReference == "" {
		return uuid.Nil, fmt.Errorf("webhook %s carries no donation reference", ev.EventID)
	}
	var d models.Donation
	err := database.DB.Select("id").
		Where("provider = ? AND provider_reference = ?", provider, ev.Outcome.ProviderReference).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrDonationNotFound
	}
	return d.ID, err
}

// ProcessPayoutWebhook applies a disbursement confirmation.
func ProcessPayoutWebhook(provider string, body []byte, signature string) (*WebhookResult, error) {
	disburser, err := payments.GetDisburser()
	if err != nil {
		return nil, err
	}
	if disburser.Name() != provider {
		return nil, fmt.Errorf("%w: %s", payments.ErrUnknownProvider, provider)
	}

	ev, err := disburser.ParsePayoutWebhook(body, signature)
	if err != nil {
		return nil, err
	}
	record, fresh, err := recordWebhook(provider, ev.EventID, "payout_result", body)
	if err != nil {
		return nil, err
	}
	result := &WebhookResult{EventID: ev.EventID}
	if !fresh {
		result.Duplicate = true
		return result, nil
	}

	_, procErr := HandlePayoutConfirmation(ev)
	finishWebhook(record, procErr)
	if procErr != nil {
		result.Error = procErr.Error()
		log.Error().Err(procErr).Str("provider", provider).Str("reference", ev.ProviderReference).Msg("payout confirmation failed")
	}
	return result, nil
}

// ProcessKYCWebhook records an identity-verification decision.
func ProcessKYCWebhook(body []byte, signature string) (*WebhookResult, error) {
	provider := KYCProvider()
	if provider == nil {
		return nil, errors.New("no kyc provider configured")
	}
	ev, err := provider.ParseWebhook(body, signature)
	if err != nil {
		return nil, err
	}

	eventID := ev.InquiryID + ":" + string(ev.Status)
	record, fresh, err := recordWebhook(provider.Name(), eventID, "inquiry."+string(ev.Status), body)
	if err != nil {
		return nil, err
	}
	result := &WebhookResult{EventID: eventID}
	if !fresh {
		result.Duplicate = true
		return result, nil
	}

	_, procErr := ApplyKYCEvent(ev)
	finishWebhook(record, procErr)
	if procErr != nil {
		result.Error = procErr.Error()
		log.Error().Err(procErr).Str("inquiry_id", ev.InquiryID).Msg("kyc webhook processing failed")
	}
	return result, nil
}

// IsSignatureError reports whether err means the webhook could not be
// authenticated.
func IsSignatureError(err error) bool {
	return errors.Is(err, payments.ErrInvalidSignature) || errors.Is(err, kyc.ErrInvalidSignature)
}
