package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartCommissionSyncOnce runs a single cycle for the selected exchanges and
// exits. Useful for backfill checks together with --dry-run.
func StartCommissionSyncOnce(cmd *cobra.Command, args []string) {
	exchanges, _ := cmd.Flags().GetStringSlice("exchange")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	env := *config.Env
	if dryRun {
		env.TestMode = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newCommissionSyncRuntime(ctx, &env, exchanges)
	util.ContinueOrFatal(err)
	defer rt.Close()

	var failed []string
	for _, name := range rt.registry.Names() {
		source, _ := rt.registry.Get(name)

		cycleTimeout := env.Exchanges[string(name)].CycleTimeout
		if cycleTimeout <= 0 {
			cycleTimeout = constant.DefaultCycleTimeout
		}

		err := util.ProcessWithTimeout(ctx, cycleTimeout, string(name), func(ctx context.Context) error {
			result, err := rt.service.RunCycle(ctx, source)
			if err != nil {
				return err
			}

			logrus.WithFields(logrus.Fields{
				"exchange":   name,
				"fetched":    result.Fetched,
				"normalized": result.Normalized,
				"submitted":  result.Submitted,
				"failed":     result.Failed,
				"skipped":    result.Skipped,
				"no_op":      result.NoOp,
			}).Info("commission sync cycle result")
			return nil
		})
		if err != nil {
			logrus.WithField("exchange", name).WithError(err).Error("commission sync cycle failed")
			failed = append(failed, string(name))
		}
	}

	if len(failed) > 0 {
		rt.Close()
		util.ContinueOrFatal(errors.New("cycle failed for " + strings.Join(failed, ", ")))
	}
}
