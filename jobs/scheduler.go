package jobs

import (
	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/robfig/cron/v3"
)

// NewScheduler registers every periodic duty on a cron instance. The caller
// starts and stops it.
func NewScheduler(cfg config.CronSettings) (*cron.Cron, error) {
	c := cron.New()
	entries := []struct {
		spec string
		fn   func()
	}{
		{cfg.DonationSweep, SweepDonations},
		{cfg.CampaignClosure, CloseCampaigns},
		{cfg.PayoutRetry, RetryPayouts},
		{cfg.RecomputeOutbox, DrainOutbox},
		{cfg.KVPurge, PurgeKV},
	}
	for _, e := range entries {
		if _, err := c.AddFunc(e.spec, e.fn); err != nil {
			return nil, err
		}
	}
	return c, nil
}
