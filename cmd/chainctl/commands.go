package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/anjiri1684/chain_donate/bootstrap"
	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func connect(cmd *cobra.Command, args []string) error {
	_, err := bootstrap.Init(cmd.Context(), bootstrap.Options{})
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pending-donation sweep (abandoned, stale, exhausted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := services.SweepPendingDonations(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func lifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle",
		Short: "Close funded campaigns past their grace period and expire ended ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := services.RunCampaignLifecycle(time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func drainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run due aggregate recomputations from the outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			drained, err := services.DrainRecomputeOutbox(time.Now(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drained %d recompute tasks\n", drained)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", config.App.Sweeper.BatchSize, "Maximum tasks to run")
	return cmd
}

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Payout maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "retry-due",
		Short: "Retry failed campaign payouts whose backoff has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			retried, err := services.RetryDuePayouts(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d payouts\n", retried)
			return nil
		},
	})
	return cmd
}

func recomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Re-derive stored aggregates from completed donations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "campaign [id]",
		Short: "Recompute a campaign's current amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid campaign id: %w", err)
			}
			campaign, err := services.RecomputeCampaignAmount(id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), campaign)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "chainer [id]",
		Short: "Recompute a chainer's totals and commission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid chainer id: %w", err)
			}
			chainer, err := services.RecomputeChainerStats(id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), chainer)
		},
	})
	return cmd
}

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair [campaign-id] [referral-code]",
		Short: "Attach unattributed donations carrying a referral code to its chainer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid campaign id: %w", err)
			}
			res, err := services.RepairChainerAttribution(id, args[1], nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
