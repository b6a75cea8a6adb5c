package models

import (
	"time"

	"github.com/google/uuid"
)

type KYCStatus string

const (
	KYCStatusPending  KYCStatus = "pending"
	KYCStatusInReview KYCStatus = "in_review"
	KYCStatusApproved KYCStatus = "approved"
	KYCStatusRejected KYCStatus = "rejected"
	KYCStatusFailed   KYCStatus = "failed"
)

type KYCVerification struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider          string     `gorm:"size:30;not null" json:"provider"`
	ExternalInquiryID string     `gorm:"size:255;not null;uniqueIndex" json:"external_inquiry_id"`
	Status            KYCStatus  `gorm:"size:20;not null;default:'pending'" json:"status"`
	CompletedAt       *time.Time `json:"completed_at"`
	LastCheckedAt     *time.Time `json:"last_checked_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFresh reports whether an approved verification can still gate payouts.
func (k *KYCVerification) IsFresh(now time.Time, window time.Duration) bool {
	if k.Status != KYCStatusApproved || k.CompletedAt == nil {
		return false
	}
	return now.Sub(*k.CompletedAt) <= window
}

// IsOpen reports whether the inquiry is still waiting on the provider.
func (k *KYCVerification) IsOpen() bool {
	return k.Status == KYCStatusPending || k.Status == KYCStatusInReview
}

// IsDecided reports whether the provider has reached a final decision.
func (k *KYCVerification) IsDecided() bool {
	return k.Status == KYCStatusApproved || k.Status == KYCStatusRejected || k.Status == KYCStatusFailed
}
