package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignStatusActive      CampaignStatus = "active"
	CampaignStatusGoalReached CampaignStatus = "goal_reached"
	CampaignStatusExpired     CampaignStatus = "expired"
	CampaignStatusClosed      CampaignStatus = "closed"
)

type Campaign struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	CreatorID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"creator_id"`
	Title      string          `gorm:"size:255;not null" json:"title"`
	GoalAmount decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"goal_amount"`
	// CurrentAmount is derived from completed donations; only the aggregate
	// recomputation writes it.
	CurrentAmount      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"current_amount"`
	CompletedDonations int64           `gorm:"not null;default:0" json:"completed_donations"`
	Currency           string          `gorm:"size:3;not null" json:"currency"`
	Status             CampaignStatus  `gorm:"size:20;not null;default:'active';index" json:"status"`

	EndsAt        *time.Time `json:"ends_at"`
	GoalReachedAt *time.Time `json:"goal_reached_at"`
	ClosedAt      *time.Time `json:"closed_at"`
	RecomputedAt  *time.Time `json:"recomputed_at"`

	Creator User `gorm:"foreignkey:CreatorID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
