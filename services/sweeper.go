package services

import (
	"context"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SweepReport struct {
	Abandoned          int `json:"abandoned"`
	Polled             int `json:"polled"`
	Resolved           int `json:"resolved"`
	MaxRetriesExceeded int `json:"max_retries_exceeded"`
	Errors             int `json:"errors"`
}

// SweepPendingDonations runs the three sweep duties in order. Every step is
// guarded by the donation's current status, so overlapping or repeated runs
// are harmless.
func SweepPendingDonations(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	if err := sweepAbandoned(now, &report); err != nil {
		return report, err
	}
	if err := sweepStale(ctx, now, &report); err != nil {
		return report, err
	}
	if err := sweepMaxRetries(now, &report); err != nil {
		return report, err
	}

	log.Info().Int("abandoned", report.Abandoned).Int("polled", report.Polled).Int("resolved", report.Resolved).
		Int("max_retries_exceeded", report.MaxRetriesExceeded).Int("errors", report.Errors).Msg("donation sweep finished")
	return report, nil
}

// sweepAbandoned fails checkouts that never received a provider reference.
func sweepAbandoned(now time.Time, report *SweepReport) error {
	cutoff := now.Add(-config.App.Sweeper.AbandonAfter.Duration)
	var ids []uuid.UUID
	err := database.DB.Model(&models.Donation{}).
		Where("status = ? AND provider_reference IS NULL AND attempt_started_at < ?", models.DonationStatusPending, cutoff).
		Limit(config.App.Sweeper.BatchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}

	for _, id := range ids {
		ok, err := failDonation(id, models.FailureAbandoned, SourceSweep, models.DonationStatusPending)
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("donation_id", id.String()).Msg("failed to abandon donation")
			continue
		}
		if ok {
			report.Abandoned++
		}
	}
	return nil
}

// sweepStale polls the provider for old pending donations and feeds the
// answer to the reconciler. A poll that still says pending after the
// cooldown window is treated as a timeout so every donation terminates.
func sweepStale(ctx context.Context, now time.Time, report *SweepReport) error {
	cutoff := now.Add(-config.App.Sweeper.PollAfter.Duration)
	var stale []models.Donation
	err := database.DB.
		Where("status = ? AND provider_reference IS NOT NULL AND attempt_started_at < ?", models.DonationStatusPending, cutoff).
		Order("attempt_started_at ASC").
		Limit(config.App.Sweeper.BatchSize).
		Find(&stale).Error
	if err != nil {
		return err
	}

	for i := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d := &stale[i]
		adapter, err := payments.Get(d.Provider)
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("donation_id", d.ID.String()).Msg("no adapter for pending donation")
			continue
		}

		report.Polled++
		outcome, err := pollDonation(ctx, adapter, d)
		if err != nil {
			report.Errors++
			if _, err := RecordTransientError(d.ID, err, SourceSweep); err != nil {
				log.Error().Err(err).Str("donation_id", d.ID.String()).Msg("failed to record sweep poll error")
			}
			continue
		}

		outcome = sweepOutcome(outcome, d, now)
		res, err := ApplyOutcome(d.ID, outcome, SourceSweep)
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("donation_id", d.ID.String()).Msg("failed to apply sweep outcome")
			continue
		}
		if res.Applied {
			report.Resolved++
		}
	}
	return nil
}

// sweepOutcome turns the provider's answer into the sweep's verdict: a
// retryable failure seen by the sweep is a timeout, and an attempt that is
// still pending past the cooldown window has timed out as well.
func sweepOutcome(o payments.Outcome, d *models.Donation, now time.Time) payments.Outcome {
	switch o.Result {
	case payments.OutcomeFailed:
		if o.Retryable {
			o.Reason = models.FailureTimeout
		}
	case payments.OutcomeStillPending:
		if now.Sub(d.AttemptStartedAt) > config.App.Sweeper.MaxRetryCooldown.Duration {
			o.Result = payments.OutcomeFailed
			o.Reason = models.FailureTimeout
			o.Retryable = false
		}
	}
	if o.ProviderReference == "" {
		o.ProviderReference = d.Reference()
	}
	return o
}

// sweepMaxRetries marks donations that used up their retries and have sat
// untouched for the cooldown window as permanently failed.
func sweepMaxRetries(now time.Time, report *SweepReport) error {
	cutoff := now.Add(-config.App.Sweeper.MaxRetryCooldown.Duration)
	var ids []uuid.UUID
	err := database.DB.Model(&models.Donation{}).
		Where("status IN ? AND retry_count >= ? AND last_status_update < ?",
			[]models.DonationStatus{models.DonationStatusPending, models.DonationStatusFailed},
			config.App.Reconciler.MaxRetries, cutoff).
		Where("failure_reason IS NULL OR failure_reason <> ?", models.FailureMaxRetriesExceeded).
		Limit(config.App.Sweeper.BatchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}

	for _, id := range ids {
		ok, err := failDonation(id, models.FailureMaxRetriesExceeded, SourceSweep,
			models.DonationStatusPending, models.DonationStatusFailed)
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("donation_id", id.String()).Msg("failed to expire donation")
			continue
		}
		if ok {
			report.MaxRetriesExceeded++
		}
	}
	return nil
}

func pollDonation(ctx context.Context, adapter payments.Adapter, d *models.Donation) (payments.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, config.App.Sweeper.PollTimeout.Duration)
	defer cancel()
	return adapter.Poll(ctx, d.Reference())
}
