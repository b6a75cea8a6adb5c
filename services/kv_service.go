package services

import (
	"time"

	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVSetNX stores value under key unless a live entry already exists. It
// reports whether this call took the key.
func KVSetNX(key, value string, ttl time.Duration) (bool, error) {
	now := time.Now()
	acquired := false
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ? AND expires_at <= ?", key, now).Delete(&models.KVEntry{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.KVEntry{
			Key:       key,
			Value:     value,
			ExpiresAt: now.Add(ttl),
		})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	return acquired, err
}

func KVDelete(key string) error {
	return database.DB.Where("key = ?", key).Delete(&models.KVEntry{}).Error
}

// PurgeExpiredKV removes entries past their expiry and returns how many.
func PurgeExpiredKV(now time.Time) (int64, error) {
	res := database.DB.Where("expires_at <= ?", now).Delete(&models.KVEntry{})
	return res.RowsAffected, res.Error
}
