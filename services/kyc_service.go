package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/kyc"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	kycMu       sync.RWMutex
	kycProvider kyc.Provider
)

func SetKYCProvider(p kyc.Provider) {
	kycMu.Lock()
	defer kycMu.Unlock()
	kycProvider = p
}

func KYCProvider() kyc.Provider {
	kycMu.RLock()
	defer kycMu.RUnlock()
	return kycProvider
}

// EnsureKYC reports whether the user holds an approved verification inside
// the freshness window. When not, it returns the open inquiry, creating one
// with the provider if none is in flight.
func EnsureKYC(ctx context.Context, userID uuid.UUID) (*models.KYCVerification, bool, error) {
	now := time.Now()
	var latest models.KYCVerification
	err := database.DB.Where("user_id = ?", userID).Order("created_at DESC").First(&latest).Error
	switch {
	case err == nil:
		if latest.IsFresh(now, config.App.KYC.Freshness.Duration) {
			return &latest, true, nil
		}
		if latest.IsOpen() {
			return &latest, false, nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	provider := KYCProvider()
	if provider == nil {
		return nil, false, businessError("kyc_required", fmt.Errorf("%w: no kyc provider configured", ErrKYCRequired))
	}

	ctx, cancel := context.WithTimeout(ctx, config.App.KYC.Timeout.Duration)
	defer cancel()
	inquiry, err := provider.CreateInquiry(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("start identity verification: %w", err)
	}

	verification := models.KYCVerification{
		UserID:            userID,
		Provider:          provider.Name(),
		ExternalInquiryID: inquiry.ID,
		Status:            inquiry.Status,
		LastCheckedAt:     &now,
	}
	if err := database.DB.Create(&verification).Error; err != nil {
		return nil, false, err
	}
	log.Info().Str("user_id", userID.String()).Str("inquiry_id", inquiry.ID).Msg("identity verification started")
	return &verification, false, nil
}

// ApplyKYCEvent records the provider's decision on an inquiry. A decided
// inquiry keeps its decision; later events for it are logged and dropped.
func ApplyKYCEvent(ev *kyc.Event) (*models.KYCVerification, error) {
	var v models.KYCVerification
	if err := database.DB.Where("external_inquiry_id = ?", ev.InquiryID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("kyc inquiry %s: %w", ev.InquiryID, gorm.ErrRecordNotFound)
		}
		return nil, err
	}
	if v.IsDecided() {
		if ev.Status != v.Status {
			log.Warn().Str("inquiry_id", v.ExternalInquiryID).Str("status", string(v.Status)).Str("late_status", string(ev.Status)).Msg("kyc event after decision ignored")
		}
		return &v, nil
	}

	now := time.Now()
	updates := map[string]interface{}{"status": ev.Status, "last_checked_at": now}
	switch ev.Status {
	case models.KYCStatusApproved, models.KYCStatusRejected, models.KYCStatusFailed:
		updates["completed_at"] = now
	}
	res := database.DB.Model(&models.KYCVerification{}).
		Where("id = ? AND status IN ?", v.ID, []models.KYCStatus{models.KYCStatusPending, models.KYCStatusInReview}).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if err := database.DB.First(&v, "id = ?", v.ID).Error; err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		log.Warn().Str("inquiry_id", v.ExternalInquiryID).Str("status", string(v.Status)).Str("late_status", string(ev.Status)).Msg("kyc event after decision ignored")
		return &v, nil
	}
	log.Info().Str("user_id", v.UserID.String()).Str("inquiry_id", v.ExternalInquiryID).Str("status", string(v.Status)).Msg("kyc status updated")
	return &v, nil
}
