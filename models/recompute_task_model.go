package models

import (
	"time"

	"github.com/google/uuid"
)

type RecomputeKind string

const (
	RecomputeCampaign RecomputeKind = "campaign"
	RecomputeChainer  RecomputeKind = "chainer"
)

// RecomputeTask is an outbox row written in the same transaction that
// completes a donation. It is deleted once the aggregate has converged.
type RecomputeTask struct {
	ID        uuid.UUID     `gorm:"type:uuid;primary_key"`
	Kind      RecomputeKind `gorm:"size:20;not null"`
	EntityID  uuid.UUID     `gorm:"type:uuid;not null"`
	Sequence  int           `gorm:"not null;default:0"`
	Attempts  int           `gorm:"not null;default:0"`
	NextRunAt time.Time     `gorm:"not null;index"`
	LastError *string       `gorm:"type:text"`

	CreatedAt time.Time
}
