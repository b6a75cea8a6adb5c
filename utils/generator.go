package utils

import (
	"errors"
	"math/rand"
	"time"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const referralCodeLength = 8
const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const maxCodeAttempts = 20

var ErrCodeSpaceExhausted = errors.New("could not generate a unique referral code")

// GenerateUniqueReferralCode returns a code not yet used by any chainer of
// the campaign. Codes only need to be unique per campaign.
func GenerateUniqueReferralCode(tx *gorm.DB, campaignID uuid.UUID) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < maxCodeAttempts; i++ {
		b := make([]byte, referralCodeLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		code := string(b)

		var count int64
		err := tx.Model(&models.Chainer{}).Where("campaign_id = ? AND referral_code = ?", campaignID, code).Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
