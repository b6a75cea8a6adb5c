package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WebhookEvent stores provider payloads with a unique (provider, event id)
// pair so redelivered events are recognised before processing.
type WebhookEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Provider        string         `gorm:"size:30;not null;uniqueIndex:idx_webhook_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"size:191;not null;uniqueIndex:idx_webhook_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"size:50;not null" json:"event_type"`
	Payload         datatypes.JSON `gorm:"not null" json:"payload"`
	SignatureValid  bool           `gorm:"not null;default:false" json:"signature_valid"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ProcessingError *string        `gorm:"type:text" json:"processing_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
