package models

import "time"

// KVEntry backs the shared expiring key-value store.
type KVEntry struct {
	Key       string    `gorm:"size:255;primary_key"`
	Value     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}
