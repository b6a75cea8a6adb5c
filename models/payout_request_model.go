package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PayoutType string

const (
	PayoutTypeCampaign   PayoutType = "campaign"
	PayoutTypeCommission PayoutType = "commission"
)

type PayoutStatus string

const (
	PayoutStatusRequested  PayoutStatus = "requested"
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusKYCPending PayoutStatus = "kyc_pending"
	PayoutStatusApproved   PayoutStatus = "approved"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusRejected   PayoutStatus = "rejected"
)

// PayoutRequest covers both campaign payouts (CampaignID set) and commission
// payouts (ChainerID set).
type PayoutRequest struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Type        PayoutType `gorm:"size:20;not null;index" json:"type"`
	RequesterID uuid.UUID  `gorm:"type:uuid;not null;index" json:"requester_id"`
	CampaignID  *uuid.UUID `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	ChainerID   *uuid.UUID `gorm:"type:uuid;index" json:"chainer_id,omitempty"`

	Amount    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Fee       decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"fee"`
	NetAmount decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"net_amount"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	// Destination is the mobile-money number or account the disburser pays.
	Destination string `gorm:"size:64" json:"destination"`

	Status            PayoutStatus `gorm:"size:20;not null;index" json:"status"`
	ProviderReference *string      `gorm:"size:255;index" json:"provider_reference"`
	RejectionReason   *string      `gorm:"type:text" json:"rejection_reason,omitempty"`
	FailureReason     *string      `gorm:"type:text" json:"failure_reason,omitempty"`
	Notes             *string      `gorm:"type:text" json:"notes,omitempty"`
	ApproverID        *uuid.UUID   `gorm:"type:uuid" json:"approver_id,omitempty"`
	KYCVerificationID *uuid.UUID   `gorm:"type:uuid" json:"kyc_verification_id,omitempty"`

	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at,omitempty"`

	FraudScore         int            `gorm:"not null;default:0" json:"fraud_score"`
	SuspiciousActivity bool           `gorm:"not null;default:false" json:"suspicious_activity"`
	FraudFlags         datatypes.JSON `json:"fraud_flags,omitempty"`
	FraudModelVersion  string         `gorm:"size:20" json:"fraud_model_version,omitempty"`

	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	Requester User `gorm:"foreignkey:RequesterID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PayoutRequest) Reference() string {
	if p.ProviderReference == nil {
		return ""
	}
	return *p.ProviderReference
}
