package jobs

import (
	"context"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/rs/zerolog/log"
)

// jobTimeout bounds one cron run so a hung provider never stacks runs.
const jobTimeout = 4 * time.Minute

func SweepDonations() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := services.SweepPendingDonations(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("donation sweep failed")
		return
	}
	if report.Abandoned+report.Resolved+report.MaxRetriesExceeded+report.Errors == 0 {
		return
	}
	log.Info().
		Int("abandoned", report.Abandoned).
		Int("polled", report.Polled).
		Int("resolved", report.Resolved).
		Int("max_retries_exceeded", report.MaxRetriesExceeded).
		Int("errors", report.Errors).
		Msg("donation sweep finished")
}

func DrainOutbox() {
	drained, err := services.DrainRecomputeOutbox(time.Now(), config.App.Sweeper.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("recompute outbox drain failed")
		return
	}
	if drained > 0 {
		log.Info().Int("drained", drained).Msg("recompute outbox drained")
	}
}

func PurgeKV() {
	purged, err := services.PurgeExpiredKV(time.Now())
	if err != nil {
		log.Error().Err(err).Msg("kv purge failed")
		return
	}
	log.Debug().Int64("purged", purged).Msg("expired kv entries purged")
}
