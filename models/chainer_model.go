package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChainerStatus string

const (
	ChainerStatusActive    ChainerStatus = "active"
	ChainerStatusSuspended ChainerStatus = "suspended"
	ChainerStatusBanned    ChainerStatus = "banned"
)

// Chainer is a referral agent sharing a campaign link. Totals are re-derived
// from completed donations carrying its id.
type Chainer struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CampaignID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chainer_campaign_code" json:"campaign_id"`
	ReferralCode string    `gorm:"size:16;not null;uniqueIndex:idx_chainer_campaign_code" json:"referral_code"`

	TotalRaised      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"total_raised"`
	TotalReferrals   int64           `gorm:"not null;default:0" json:"total_referrals"`
	CommissionEarned decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"commission_earned"`
	CommissionPaid   bool            `gorm:"not null;default:false" json:"commission_paid"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(5,4);not null" json:"commission_rate"`
	Status           ChainerStatus   `gorm:"size:20;not null;default:'active'" json:"status"`
	RecomputedAt     *time.Time      `json:"recomputed_at"`

	User     User     `gorm:"foreignkey:UserID" json:"-"`
	Campaign Campaign `gorm:"foreignkey:CampaignID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
