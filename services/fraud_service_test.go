package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestScorePayout(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-365 * 24 * time.Hour)

	cases := []struct {
		name       string
		in         FraudInput
		score      int
		suspicious bool
		flags      []string
	}{
		{
			name: "small established payout",
			in:   FraudInput{Amount: decimal.NewFromInt(200), TotalReferrals: 5, AccountCreatedAt: old, Now: now},
		},
		{
			name:  "large amount",
			in:    FraudInput{Amount: decimal.NewFromInt(1500), AccountCreatedAt: old, Now: now},
			score: 20,
			flags: []string{FlagLargeAmount},
		},
		{
			name:  "very large amount",
			in:    FraudInput{Amount: decimal.NewFromInt(6000), AccountCreatedAt: old, Now: now},
			score: 50,
			flags: []string{FlagLargeAmount, FlagVeryLargeAmount},
		},
		{
			name:  "referral velocity",
			in:    FraudInput{Amount: decimal.NewFromInt(10), TotalReferrals: 120, AccountCreatedAt: old, Now: now},
			score: 40,
			flags: []string{FlagHighReferrals, FlagVeryHighReferrals},
		},
		{
			name:       "new account high performance",
			in:         FraudInput{Amount: decimal.NewFromInt(10), TotalReferrals: 11, AccountCreatedAt: now.Add(-48 * time.Hour), Now: now},
			score:      30,
			suspicious: true,
			flags:      []string{FlagNewAccount},
		},
		{
			name:       "request velocity",
			in:         FraudInput{Amount: decimal.NewFromInt(10), RecentPayoutRequests: 4, AccountCreatedAt: old, Now: now},
			score:      20,
			suspicious: true,
			flags:      []string{FlagPayoutVelocity},
		},
		{
			name: "capped at one hundred",
			in: FraudInput{
				Amount: decimal.NewFromInt(9000), TotalReferrals: 150, RecentPayoutRequests: 9,
				AccountCreatedAt: now.Add(-time.Hour), Now: now,
			},
			score:      100,
			suspicious: true,
			flags:      []string{FlagLargeAmount, FlagVeryLargeAmount, FlagHighReferrals, FlagVeryHighReferrals, FlagNewAccount, FlagPayoutVelocity},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScorePayout(tc.in)
			if got.Score != tc.score || got.Suspicious != tc.suspicious {
				t.Fatalf("score=%d suspicious=%v, want %d/%v", got.Score, got.Suspicious, tc.score, tc.suspicious)
			}
			if got.Version != FraudModelVersion {
				t.Fatalf("version = %q", got.Version)
			}
			if len(got.Flags) != len(tc.flags) {
				t.Fatalf("flags = %v, want %v", got.Flags, tc.flags)
			}
			for i := range tc.flags {
				if got.Flags[i] != tc.flags[i] {
					t.Fatalf("flags = %v, want %v", got.Flags, tc.flags)
				}
			}
		})
	}
}

func TestScorePayoutIsPure(t *testing.T) {
	in := FraudInput{Amount: decimal.NewFromInt(2500), TotalReferrals: 60, Now: time.Now()}
	a, b := ScorePayout(in), ScorePayout(in)
	if a.Score != b.Score || len(a.Flags) != len(b.Flags) {
		t.Fatal("same input produced different assessments")
	}
}
