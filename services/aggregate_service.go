package services

import (
	"errors"
	"fmt"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sumCompleted re-derives the total and count of completed donations matched
// by scope. Amounts are summed as decimals in process.
func sumCompleted(scope *gorm.DB) (decimal.Decimal, int64, error) {
	var amounts []decimal.Decimal
	err := scope.Model(&models.Donation{}).
		Where("status = ?", models.DonationStatusCompleted).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, int64(len(amounts)), nil
}

// RecomputeCampaignAmount rewrites current_amount from the completed
// donation set and moves an active campaign to goal_reached when the goal
// is met. Safe to call any number of times.
func RecomputeCampaignAmount(campaignID uuid.UUID) (*models.Campaign, error) {
	unlock := lockCampaign(campaignID)
	defer unlock()

	var campaign models.Campaign
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, "id = ?", campaignID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return err
		}

		total, count, err := sumCompleted(tx.Where("campaign_id = ?", campaignID))
		if err != nil {
			return err
		}

		now := time.Now()
		campaign.CurrentAmount = total
		campaign.CompletedDonations = count
		campaign.RecomputedAt = &now
		if campaign.Status == models.CampaignStatusActive && campaign.GoalAmount.IsPositive() &&
			total.GreaterThanOrEqual(campaign.GoalAmount) {
			campaign.Status = models.CampaignStatusGoalReached
			campaign.GoalReachedAt = &now
			log.Info().Str("campaign_id", campaignID.String()).Str("amount", total.String()).Msg("campaign goal reached")
		}
		return tx.Omit(clause.Associations).Save(&campaign).Error
	})
	if err != nil {
		return nil, fmt.Errorf("recompute campaign %s: %w", campaignID, err)
	}

	websocket.PublishCampaign(&campaign)
	return &campaign, nil
}

type LifecycleReport struct {
	Closed  int64 `json:"closed"`
	Expired int64 `json:"expired"`
}

// RunCampaignLifecycle closes goal_reached campaigns after the grace period
// and expires active campaigns past their deadline. Each update is guarded
// by the current status, so repeated runs change nothing further.
func RunCampaignLifecycle(now time.Time) (LifecycleReport, error) {
	var report LifecycleReport
	cutoff := now.Add(-config.App.Campaign.ClosureGrace.Duration)

	res := database.DB.Model(&models.Campaign{}).
		Where("status = ? AND goal_reached_at IS NOT NULL AND goal_reached_at <= ?", models.CampaignStatusGoalReached, cutoff).
		Updates(map[string]interface{}{"status": models.CampaignStatusClosed, "closed_at": now})
	if res.Error != nil {
		return report, fmt.Errorf("close campaigns: %w", res.Error)
	}
	report.Closed = res.RowsAffected

	res = database.DB.Model(&models.Campaign{}).
		Where("status = ? AND ends_at IS NOT NULL AND ends_at < ?", models.CampaignStatusActive, now).
		Updates(map[string]interface{}{"status": models.CampaignStatusExpired})
	if res.Error != nil {
		return report, fmt.Errorf("expire campaigns: %w", res.Error)
	}
	report.Expired = res.RowsAffected

	if report.Closed > 0 || report.Expired > 0 {
		log.Info().Int64("closed", report.Closed).Int64("expired", report.Expired).Msg("campaign lifecycle sweep")
	}
	return report, nil
}

func GetCampaign(id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := database.DB.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}
