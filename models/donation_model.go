package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
)

type FailureReason string

const (
	FailureCardDeclined       FailureReason = "card_declined"
	FailureInsufficientFunds  FailureReason = "insufficient_funds"
	FailureExpiredCard        FailureReason = "expired_card"
	FailureInvalidAccount     FailureReason = "invalid_account"
	FailureCancelledByUser    FailureReason = "cancelled_by_user"
	FailureTimeout            FailureReason = "timeout"
	FailureTechnicalError     FailureReason = "technical_error"
	FailureAbandoned          FailureReason = "abandoned"
	FailureMaxRetriesExceeded FailureReason = "max_retries_exceeded"
	FailureUnknown            FailureReason = "unknown"
)

var failureMessages = map[FailureReason]string{
	FailureCardDeclined:       "Your card was declined by the issuer.",
	FailureInsufficientFunds:  "The account has insufficient funds.",
	FailureExpiredCard:        "The card has expired.",
	FailureInvalidAccount:     "The payment account details were rejected.",
	FailureCancelledByUser:    "The payment was cancelled.",
	FailureTimeout:            "The payment was not confirmed in time.",
	FailureTechnicalError:     "The payment provider could not process the request.",
	FailureAbandoned:          "The checkout was not completed.",
	FailureMaxRetriesExceeded: "The payment failed after several attempts.",
}

// Message is the human readable text shown to donors.
func (r FailureReason) Message() string {
	if m, ok := failureMessages[r]; ok {
		return m
	}
	return "The payment could not be completed."
}

// Donation is one payment attempt toward a campaign. ProcessedAt is set
// exactly when Status is completed, and completed is terminal.
type Donation struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	CampaignID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_donation_campaign_status" json:"campaign_id"`
	DonorID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"donor_id"`
	ChainerID         *uuid.UUID      `gorm:"type:uuid;index" json:"chainer_id"`
	ReferralCode      *string         `gorm:"size:16" json:"referral_code,omitempty"`
	Amount            decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Provider          string          `gorm:"size:30;not null" json:"provider"`
	ProviderReference *string         `gorm:"size:255;index" json:"provider_reference"`
	Status            DonationStatus  `gorm:"size:20;not null;default:'pending';index:idx_donation_campaign_status" json:"status"`
	RetryCount        int             `gorm:"not null;default:0" json:"retry_count"`
	// Attempt counts explicit user retries; it scopes idempotency keys so a
	// new checkout can reuse nothing from the previous one.
	Attempt          int            `gorm:"not null;default:0" json:"attempt"`
	FailureReason    *FailureReason `gorm:"size:40" json:"failure_reason"`
	LastStatusUpdate time.Time      `gorm:"not null" json:"last_status_update"`
	AttemptStartedAt time.Time      `gorm:"not null;index" json:"attempt_started_at"`
	ProcessedAt      *time.Time     `json:"processed_at"`

	Campaign Campaign `gorm:"foreignkey:CampaignID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Donation) IsTerminal() bool {
	return d.Status == DonationStatusCompleted
}

func (d *Donation) Reference() string {
	if d.ProviderReference == nil {
		return ""
	}
	return *d.ProviderReference
}
