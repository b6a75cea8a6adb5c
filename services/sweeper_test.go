package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
)

func TestSweepPollsStaleDonationToTimeout(t *testing.T) {
	setup(t)
	adapter := installAdapter(t)
	adapter.pollOutcome = payments.Outcome{Result: payments.OutcomeFailed, RawStatus: "1037", Reason: models.FailureTechnicalError, Retryable: true}

	campaign := newCampaign(t, uuid.New(), "1000")
	d2 := newDonation(t, campaign, "75", withReference("REF-D2"), startedAgo(90*time.Minute))

	report, err := SweepPendingDonations(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if report.Polled != 1 || report.Resolved != 1 {
		t.Fatalf("report = %+v", report)
	}

	got := reloadDonation(t, d2.ID)
	if got.Status != models.DonationStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailureReason == nil || *got.FailureReason != models.FailureTimeout {
		t.Fatalf("failure reason = %v, want timeout", got.FailureReason)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1", got.RetryCount)
	}

	// A second sweep finds nothing left to poll.
	report, err = SweepPendingDonations(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if report.Polled != 0 || adapter.pollCount() != 1 {
		t.Fatalf("second sweep polled again: %+v polls=%d", report, adapter.pollCount())
	}
}

func TestSweepLeavesFreshDonationsAlone(t *testing.T) {
	setup(t)
	adapter := installAdapter(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	fresh := newDonation(t, campaign, "10", withReference("REF-F"), startedAgo(10*time.Minute))
	unreferenced := newDonation(t, campaign, "10", startedAgo(5*time.Minute))

	if _, err := SweepPendingDonations(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if adapter.pollCount() != 0 {
		t.Fatal("fresh donation should not be polled")
	}
	for _, id := range []uuid.UUID{fresh.ID, unreferenced.ID} {
		if got := reloadDonation(t, id); got.Status != models.DonationStatusPending {
			t.Fatalf("donation %s status = %s", id, got.Status)
		}
	}
}

func TestSweepCompletesDonationReportedSucceeded(t *testing.T) {
	setup(t)
	adapter := installAdapter(t)
	adapter.pollOutcome = payments.Outcome{Result: payments.OutcomeSucceeded, RawStatus: "0"}

	campaign := newCampaign(t, uuid.New(), "1000")
	d := newDonation(t, campaign, "45", withReference("REF-S"), startedAgo(2*time.Hour))

	if _, err := SweepPendingDonations(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if got := reloadDonation(t, d.ID); got.Status != models.DonationStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if c := reloadCampaign(t, campaign.ID); !c.CurrentAmount.Equal(dec("45")) {
		t.Fatalf("current_amount = %s, want 45", c.CurrentAmount)
	}
}

func TestSweepAbandonsUnreferencedCheckouts(t *testing.T) {
	setup(t)
	installAdapter(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	d := newDonation(t, campaign, "10", startedAgo(20*time.Minute))

	report, err := SweepPendingDonations(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if report.Abandoned != 1 {
		t.Fatalf("abandoned = %d, want 1", report.Abandoned)
	}
	got := reloadDonation(t, d.ID)
	if got.Status != models.DonationStatusFailed || *got.FailureReason != models.FailureAbandoned {
		t.Fatalf("status=%s reason=%v", got.Status, got.FailureReason)
	}

	report, _ = SweepPendingDonations(context.Background(), time.Now())
	if report.Abandoned != 0 {
		t.Fatal("abandoned donation swept twice")
	}
}

func TestSweepTimesOutLongPendingPoll(t *testing.T) {
	setup(t)
	installAdapter(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	d := newDonation(t, campaign, "10", withReference("REF-P"), startedAgo(25*time.Hour))

	if _, err := SweepPendingDonations(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	got := reloadDonation(t, d.ID)
	if got.Status != models.DonationStatusFailed || *got.FailureReason != models.FailureTimeout {
		t.Fatalf("status=%s reason=%v, want failed/timeout", got.Status, got.FailureReason)
	}
}

func TestSweepStillPendingWithinWindowStaysPending(t *testing.T) {
	setup(t)
	adapter := installAdapter(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	d := newDonation(t, campaign, "10", withReference("REF-W"), startedAgo(3*time.Hour))

	if _, err := SweepPendingDonations(context.Background(), time.Now()); err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if adapter.pollCount() != 1 {
		t.Fatalf("polls = %d, want 1", adapter.pollCount())
	}
	if got := reloadDonation(t, d.ID); got.Status != models.DonationStatusPending || got.RetryCount != 0 {
		t.Fatalf("status=%s retry_count=%d", got.Status, got.RetryCount)
	}
}

func TestSweepExpiresExhaustedDonations(t *testing.T) {
	setup(t)
	installAdapter(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	exhausted := newDonation(t, campaign, "10", withReference("REF-X"), withStatus(models.DonationStatusFailed),
		startedAgo(30*time.Hour), func(d *models.Donation) { d.RetryCount = 3 })
	recent := newDonation(t, campaign, "10", withReference("REF-Y"), withStatus(models.DonationStatusFailed),
		startedAgo(2*time.Hour), func(d *models.Donation) { d.RetryCount = 3 })

	report, err := SweepPendingDonations(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if report.MaxRetriesExceeded != 1 {
		t.Fatalf("max_retries_exceeded = %d, want 1", report.MaxRetriesExceeded)
	}
	if got := reloadDonation(t, exhausted.ID); *got.FailureReason != models.FailureMaxRetriesExceeded {
		t.Fatalf("reason = %v", got.FailureReason)
	}
	if got := reloadDonation(t, recent.ID); got.FailureReason != nil {
		t.Fatalf("recent donation should be untouched, reason = %v", *got.FailureReason)
	}
}

func TestSweepCountsTransientPollErrors(t *testing.T) {
	setup(t)
	adapter := installAdapter(t)
	adapter.pollErr = &payments.ProviderError{Provider: testProvider, Kind: payments.KindTransient, Err: errors.New("503")}

	campaign := newCampaign(t, uuid.New(), "1000")
	d := newDonation(t, campaign, "10", withReference("REF-E"), startedAgo(2*time.Hour))

	report, err := SweepPendingDonations(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SweepPendingDonations: %v", err)
	}
	if report.Errors != 1 {
		t.Fatalf("errors = %d, want 1", report.Errors)
	}
	got := reloadDonation(t, d.ID)
	if got.Status != models.DonationStatusPending || got.RetryCount != 1 {
		t.Fatalf("status=%s retry_count=%d, want pending/1", got.Status, got.RetryCount)
	}
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	setup(t)
	adapter := installAdapter(t)
	campaign := newCampaign(t, uuid.New(), "1000")
	newDonation(t, campaign, "10", withReference("REF-C"), startedAgo(2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := SweepPendingDonations(ctx, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if adapter.pollCount() != 0 {
		t.Fatal("cancelled sweep should not poll")
	}
}
