package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// FraudModelVersion is stored with every assessment so scores from older
// weightings can be told apart.
const FraudModelVersion = "heuristic-v1"

const (
	FlagLargeAmount       = "large_amount"
	FlagVeryLargeAmount   = "very_large_amount"
	FlagHighReferrals     = "high_referral_velocity"
	FlagVeryHighReferrals = "very_high_referral_velocity"
	FlagNewAccount        = "new_account_high_performance"
	FlagPayoutVelocity    = "payout_request_velocity"
)

var (
	largeAmount     = decimal.NewFromInt(1000)
	veryLargeAmount = decimal.NewFromInt(5000)
)

type FraudInput struct {
	Amount               decimal.Decimal
	TotalReferrals       int64
	AccountCreatedAt     time.Time
	RecentPayoutRequests int64
	Now                  time.Time
}

type FraudAssessment struct {
	Score      int      `json:"score"`
	Suspicious bool     `json:"suspicious"`
	Flags      []string `json:"flags"`
	Version    string   `json:"version"`
}

// ScorePayout is advisory input for the approver. It never changes a
// payout's status.
func ScorePayout(in FraudInput) FraudAssessment {
	a := FraudAssessment{Version: FraudModelVersion, Flags: []string{}}

	if in.Amount.GreaterThan(largeAmount) {
		a.Score += 20
		a.Flags = append(a.Flags, FlagLargeAmount)
	}
	if in.Amount.GreaterThan(veryLargeAmount) {
		a.Score += 30
		a.Flags = append(a.Flags, FlagVeryLargeAmount)
	}

	if in.TotalReferrals > 50 {
		a.Score += 15
		a.Flags = append(a.Flags, FlagHighReferrals)
	}
	if in.TotalReferrals > 100 {
		a.Score += 25
		a.Flags = append(a.Flags, FlagVeryHighReferrals)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if !in.AccountCreatedAt.IsZero() && now.Sub(in.AccountCreatedAt) < 7*24*time.Hour && in.TotalReferrals > 10 {
		a.Score += 30
		a.Suspicious = true
		a.Flags = append(a.Flags, FlagNewAccount)
	}

	if in.RecentPayoutRequests > 3 {
		a.Score += 20
		a.Suspicious = true
		a.Flags = append(a.Flags, FlagPayoutVelocity)
	}

	if a.Score > 100 {
		a.Score = 100
	}
	return a
}
