package jobs

import (
	"time"

	"github.com/anjiri1684/chain_donate/services"
	"github.com/rs/zerolog/log"
)

func CloseCampaigns() {
	report, err := services.RunCampaignLifecycle(time.Now())
	if err != nil {
		log.Error().Err(err).Msg("campaign lifecycle run failed")
		return
	}
	if report.Closed+report.Expired > 0 {
		log.Info().Int64("closed", report.Closed).Int64("expired", report.Expired).Msg("campaign lifecycle run finished")
	}
}
