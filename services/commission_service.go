package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecomputeChainerStats re-derives a chainer's totals from the completed
// donations attributed to it.
func RecomputeChainerStats(chainerID uuid.UUID) (*models.Chainer, error) {
	unlock := lockChainer(chainerID)
	defer unlock()

	var chainer models.Chainer
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&chainer, "id = ?", chainerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChainerNotFound
			}
			return err
		}

		total, count, err := sumCompleted(tx.Where("chainer_id = ?", chainerID))
		if err != nil {
			return err
		}

		now := time.Now()
		chainer.TotalRaised = total
		chainer.TotalReferrals = count
		chainer.CommissionEarned = total.Mul(chainer.CommissionRate).Round(2)
		chainer.RecomputedAt = &now
		return tx.Omit(clause.Associations).Save(&chainer).Error
	})
	if err != nil {
		return nil, fmt.Errorf("recompute chainer %s: %w", chainerID, err)
	}
	return &chainer, nil
}

func GetChainer(id uuid.UUID) (*models.Chainer, error) {
	var chainer models.Chainer
	if err := database.DB.First(&chainer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChainerNotFound
		}
		return nil, err
	}
	return &chainer, nil
}

type RepairResult struct {
	ChainerID  uuid.UUID       `json:"chainer_id"`
	Attributed int             `json:"attributed"`
	Chainer    *models.Chainer `json:"chainer"`
}

// RepairChainerAttribution assigns the chainer behind referralCode to
// completed donations of the campaign that carried the code but lost their
// attribution, then recomputes the chainer. It refuses once a commission
// payout has been paid against the old totals.
func RepairChainerAttribution(campaignID uuid.UUID, referralCode string, actorID *uuid.UUID) (*RepairResult, error) {
	var chainer models.Chainer
	err := database.DB.Where("campaign_id = ? AND referral_code = ?", campaignID, referralCode).First(&chainer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChainerNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &RepairResult{ChainerID: chainer.ID}
	err = func() error {
		unlock := lockChainer(chainer.ID)
		defer unlock()

		return database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&chainer, "id = ?", chainer.ID).Error; err != nil {
				return err
			}

			var paid int64
			err := tx.Model(&models.PayoutRequest{}).
				Where("type = ? AND chainer_id = ? AND status = ?", models.PayoutTypeCommission, chainer.ID, models.PayoutStatusPaid).
				Count(&paid).Error
			if err != nil {
				return err
			}
			if paid > 0 || chainer.CommissionPaid {
				return businessError("attribution_locked", ErrAttributionLocked)
			}

			var ids []uuid.UUID
			err = tx.Model(&models.Donation{}).
				Where("campaign_id = ? AND referral_code = ? AND chainer_id IS NULL AND status = ?",
					campaignID, referralCode, models.DonationStatusCompleted).
				Pluck("id", &ids).Error
			if err != nil || len(ids) == 0 {
				return err
			}

			if err := tx.Model(&models.Donation{}).Where("id IN ?", ids).Update("chainer_id", chainer.ID).Error; err != nil {
				return err
			}

			meta, _ := json.Marshal(map[string]string{"chainer_id": chainer.ID.String(), "referral_code": referralCode})
			events := make([]models.DonationEvent, 0, len(ids))
			for _, id := range ids {
				events = append(events, models.DonationEvent{
					DonationID: id,
					Kind:       models.DonationEventRepaired,
					Source:     string(SourceManual),
					FromStatus: models.DonationStatusCompleted,
					ToStatus:   models.DonationStatusCompleted,
					ActorID:    actorID,
					Metadata:   meta,
				})
			}
			if err := tx.Create(&events).Error; err != nil {
				return err
			}
			result.Attributed = len(ids)
			return nil
		})
	}()
	if err != nil {
		return nil, err
	}

	log.Info().Str("chainer_id", chainer.ID.String()).Int("attributed", result.Attributed).Msg("chainer attribution repaired")

	updated, err := RecomputeChainerStats(chainer.ID)
	if err != nil {
		return nil, err
	}
	result.Chainer = updated
	return result, nil
}
