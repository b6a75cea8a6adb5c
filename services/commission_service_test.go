package services

import (
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/google/uuid"
)

func TestChainerTotalsFollowCompletions(t *testing.T) {
	setup(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	x := newChainer(t, uuid.New(), campaign.ID, "REF001")

	d3 := newDonation(t, campaign, "50", withChainer(x), withReference("REF-D3"))
	d4 := newDonation(t, campaign, "30", withChainer(x), withReference("REF-D4"))

	if _, err := ApplyOutcome(d3.ID, succeeded("REF-D3"), SourceWebhook); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	c, err := GetChainer(x.ID)
	if err != nil {
		t.Fatalf("GetChainer: %v", err)
	}
	if !c.TotalRaised.Equal(dec("50")) || c.TotalReferrals != 1 {
		t.Fatalf("after D3: total_raised=%s referrals=%d", c.TotalRaised, c.TotalReferrals)
	}
	if !c.CommissionEarned.Equal(dec("5")) {
		t.Fatalf("commission_earned = %s, want 5", c.CommissionEarned)
	}

	if _, err := ApplyOutcome(d4.ID, succeeded("REF-D4"), SourcePoll); err != nil {
		t.Fatalf("ApplyOutcome: %v", err)
	}
	c, _ = GetChainer(x.ID)
	if !c.TotalRaised.Equal(dec("80")) || c.TotalReferrals != 2 {
		t.Fatalf("after D4: total_raised=%s referrals=%d", c.TotalRaised, c.TotalReferrals)
	}
	if !c.CommissionEarned.Equal(dec("8")) {
		t.Fatalf("commission_earned = %s, want 8", c.CommissionEarned)
	}
}

func TestRecomputeChainerStatsRoundsCommission(t *testing.T) {
	setup(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	x := newChainer(t, uuid.New(), campaign.ID, "ROUND1")
	newDonation(t, campaign, "33.33", withChainer(x), withStatus(models.DonationStatusCompleted))
	newDonation(t, campaign, "0.04", withChainer(x), withStatus(models.DonationStatusCompleted))

	c, err := RecomputeChainerStats(x.ID)
	if err != nil {
		t.Fatalf("RecomputeChainerStats: %v", err)
	}
	// 33.37 * 0.10 = 3.337
	if !c.CommissionEarned.Equal(dec("3.34")) {
		t.Fatalf("commission_earned = %s, want 3.34", c.CommissionEarned)
	}
}

func TestRepairChainerAttribution(t *testing.T) {
	setup(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	x := newChainer(t, uuid.New(), campaign.ID, "FIXME1")

	code := "FIXME1"
	lost := func(d *models.Donation) { d.ReferralCode = &code }
	a := newDonation(t, campaign, "10", lost, withStatus(models.DonationStatusCompleted))
	b := newDonation(t, campaign, "15", lost, withStatus(models.DonationStatusCompleted))
	newDonation(t, campaign, "99", lost)
	newDonation(t, campaign, "7", withStatus(models.DonationStatusCompleted))

	actor := uuid.New()
	res, err := RepairChainerAttribution(campaign.ID, "FIXME1", &actor)
	if err != nil {
		t.Fatalf("RepairChainerAttribution: %v", err)
	}
	if res.Attributed != 2 {
		t.Fatalf("attributed = %d, want 2", res.Attributed)
	}
	if !res.Chainer.TotalRaised.Equal(dec("25")) {
		t.Fatalf("total_raised = %s, want 25", res.Chainer.TotalRaised)
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		d := reloadDonation(t, id)
		if d.ChainerID == nil || *d.ChainerID != x.ID {
			t.Fatalf("donation %s not attributed", id)
		}
		if n := countEvents(t, id, models.DonationEventRepaired); n != 1 {
			t.Fatalf("repaired events = %d, want 1", n)
		}
	}

	again, err := RepairChainerAttribution(campaign.ID, "FIXME1", &actor)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if again.Attributed != 0 || !again.Chainer.TotalRaised.Equal(dec("25")) {
		t.Fatalf("second repair changed state: %+v", again)
	}
}

func TestRepairChainerAttributionUnknownCode(t *testing.T) {
	setup(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	if _, err := RepairChainerAttribution(campaign.ID, "NOPE", nil); !errors.Is(err, ErrChainerNotFound) {
		t.Fatalf("expected ErrChainerNotFound, got %v", err)
	}
}

func TestRepairChainerAttributionLockedAfterPayment(t *testing.T) {
	setup(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	x := newChainer(t, uuid.New(), campaign.ID, "PAID01")

	chainerID := x.ID
	mustCreate(t, &models.PayoutRequest{
		Type:        models.PayoutTypeCommission,
		RequesterID: x.UserID,
		ChainerID:   &chainerID,
		Amount:      dec("5"),
		NetAmount:   dec("4.75"),
		Currency:    "NGN",
		Status:      models.PayoutStatusPaid,
		RequestedAt: time.Now(),
	})

	_, err := RepairChainerAttribution(campaign.ID, "PAID01", nil)
	if !errors.Is(err, ErrAttributionLocked) {
		t.Fatalf("expected ErrAttributionLocked, got %v", err)
	}
	if !IsBusinessError(err) {
		t.Fatal("locked attribution should be a business error")
	}

	database.DB.Model(&models.PayoutRequest{}).Where("chainer_id = ?", x.ID).Update("status", models.PayoutStatusRejected)
	database.DB.Model(&models.Chainer{}).Where("id = ?", x.ID).Update("commission_paid", true)
	if _, err := RepairChainerAttribution(campaign.ID, "PAID01", nil); !errors.Is(err, ErrAttributionLocked) {
		t.Fatalf("expected ErrAttributionLocked from paid flag, got %v", err)
	}
}

func TestJoinCampaign(t *testing.T) {
	setup(t)
	user := newUser(t, time.Now())
	campaign := newCampaign(t, uuid.New(), "1000")

	c, err := JoinCampaign(campaign.ID, user.ID)
	if err != nil {
		t.Fatalf("JoinCampaign: %v", err)
	}
	if c.ReferralCode == "" || !c.CommissionRate.Equal(DefaultCommissionRate) {
		t.Fatalf("unexpected chainer: %+v", c)
	}

	again, err := JoinCampaign(campaign.ID, user.ID)
	if err != nil {
		t.Fatalf("second JoinCampaign: %v", err)
	}
	if again.ID != c.ID {
		t.Fatal("joining twice should return the existing chainer")
	}

	if _, err := JoinCampaign(uuid.New(), user.ID); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}
