package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "chainctl",
		Short:   "Operator tooling for the donation reconciliation engine",
		Version: Version,
		// Every subcommand talks to the database, so settings and
		// providers are wired once here.
		PersistentPreRunE: connect,
		SilenceUsage:      true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(lifecycleCmd())
	rootCmd.AddCommand(drainCmd())
	rootCmd.AddCommand(payoutsCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(repairCmd())
	return rootCmd
}
