package handlers

import (
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/gofiber/fiber/v2"
)

// Cron endpoints let an external scheduler trigger the same duties the
// in-process cron runs. Every duty is idempotent.

func CronSweepDonations(c *fiber.Ctx) error {
	report, err := services.SweepPendingDonations(c.UserContext(), time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func CronCampaignLifecycle(c *fiber.Ctx) error {
	report, err := services.RunCampaignLifecycle(time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func CronRetryPayouts(c *fiber.Ctx) error {
	retried, err := services.RetryDuePayouts(c.UserContext(), time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"retried": retried})
}

func CronDrainOutbox(c *fiber.Ctx) error {
	drained, err := services.DrainRecomputeOutbox(time.Now(), config.App.Sweeper.BatchSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"drained": drained})
}

func CronPurgeKV(c *fiber.Ctx) error {
	purged, err := services.PurgeExpiredKV(time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"purged": purged})
}
