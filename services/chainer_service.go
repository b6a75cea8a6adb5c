package services

import (
	"errors"

	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var DefaultCommissionRate = decimal.RequireFromString("0.05")

// JoinCampaign enrols the user as a chainer of the campaign, returning the
// existing enrolment when there is one.
func JoinCampaign(campaignID, userID uuid.UUID) (*models.Chainer, error) {
	campaign, err := GetCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, businessError("campaign_not_active", ErrCampaignNotActive)
	}

	var chainer models.Chainer
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("campaign_id = ? AND user_id = ?", campaignID, userID).First(&chainer).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		code, err := utils.GenerateUniqueReferralCode(tx, campaignID)
		if err != nil {
			return err
		}
		chainer = models.Chainer{
			UserID:         userID,
			CampaignID:     campaignID,
			ReferralCode:   code,
			CommissionRate: DefaultCommissionRate,
			Status:         models.ChainerStatusActive,
		}
		return tx.Omit(clause.Associations).Create(&chainer).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("chainer_id", chainer.ID.String()).Str("campaign_id", campaignID.String()).Str("code", chainer.ReferralCode).Msg("chainer enrolled")
	return &chainer, nil
}
