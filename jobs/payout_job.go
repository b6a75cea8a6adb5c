package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/chain_donate/services"
	"github.com/rs/zerolog/log"
)

func RetryPayouts() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	retried, err := services.RetryDuePayouts(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("payout retry run failed")
		return
	}
	if retried > 0 {
		log.Info().Int("retried", retried).Msg("payouts retried")
	}
}
