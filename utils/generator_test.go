package utils_test

import (
	"testing"

	"github.com/anjiri1684/chain_donate/database/dbtest"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestGenerateUniqueReferralCode(t *testing.T) {
	db := dbtest.Use(t)
	campaignID := uuid.New()

	seen := map[string]bool{}
	for i := 0; i < 25; i++ {
		code, err := utils.GenerateUniqueReferralCode(db, campaignID)
		if err != nil {
			t.Fatalf("GenerateUniqueReferralCode: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		if seen[code] {
			t.Fatalf("code %q generated twice", code)
		}
		seen[code] = true

		chainer := models.Chainer{
			UserID:         uuid.New(),
			CampaignID:     campaignID,
			ReferralCode:   code,
			CommissionRate: decimal.RequireFromString("0.05"),
		}
		if err := db.Omit("User", "Campaign").Create(&chainer).Error; err != nil {
			t.Fatalf("create chainer: %v", err)
		}
	}
}
