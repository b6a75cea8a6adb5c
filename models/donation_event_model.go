package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DonationEventKind string

const (
	DonationEventApplied  DonationEventKind = "applied"
	DonationEventAbsorbed DonationEventKind = "absorbed"
	DonationEventRetried  DonationEventKind = "retried"
	DonationEventRepaired DonationEventKind = "repaired"
)

// DonationEvent is the audit trail of a donation. IdempotencyKey is unique,
// so the second delivery of the same outcome cannot insert its row.
type DonationEvent struct {
	ID                uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	DonationID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"donation_id"`
	Kind              DonationEventKind `gorm:"size:20;not null" json:"kind"`
	Source            string            `gorm:"size:20;not null" json:"source"`
	Outcome           string            `gorm:"size:20" json:"outcome"`
	FromStatus        DonationStatus    `gorm:"size:20" json:"from_status"`
	ToStatus          DonationStatus    `gorm:"size:20" json:"to_status"`
	ProviderReference *string           `gorm:"size:255" json:"provider_reference"`
	RawStatus         string            `gorm:"size:100" json:"raw_status"`
	IdempotencyKey    *string           `gorm:"size:400;uniqueIndex" json:"-"`
	ActorID           *uuid.UUID        `gorm:"type:uuid" json:"actor_id"`
	Metadata          datatypes.JSON    `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
