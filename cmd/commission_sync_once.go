/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/rebate-sync/internal/bootstrap"
	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/spf13/cobra"
)

// commissionSyncOnceCmd represents the single cycle command
var commissionSyncOnceCmd = &cobra.Command{
	Use:   "commission-sync-once",
	Short: "Run a single commission sync cycle and exit",
	Long:  `Run a single commission sync cycle for the selected exchanges and exit.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			return nil
		}
		return config.Env.Validate()
	},
	Run: bootstrap.StartCommissionSyncOnce,
}

func init() {
	rootCmd.AddCommand(commissionSyncOnceCmd)
	commissionSyncOnceCmd.Flags().StringSlice("exchange", nil, "exchanges to sync, defaults to every enabled exchange")
	commissionSyncOnceCmd.Flags().Bool("dry-run", false, "log submissions instead of sending them and keep the watermark untouched")
}
