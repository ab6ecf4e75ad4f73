/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/rebate-sync/internal/bootstrap"
	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/spf13/cobra"
)

// commissionSyncWorkerCmd represents the commission sync worker command
var commissionSyncWorkerCmd = &cobra.Command{
	Use:   "commission-sync-worker",
	Short: "Continuously sync exchange commissions to the backend",
	Long: `Runs one scheduler per enabled exchange. Each cycle fetches commissions
since the last watermark, skips records already forwarded today and posts the
rest to the backend ledger.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Env.Validate()
	},
	Run: bootstrap.StartCommissionSyncWorker,
}

func init() {
	rootCmd.AddCommand(commissionSyncWorkerCmd)
}
