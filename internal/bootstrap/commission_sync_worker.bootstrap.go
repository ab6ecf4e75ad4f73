package bootstrap

import (
	"context"
	"sync"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/service/commissionsync"
	"github.com/krobus00/rebate-sync/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartCommissionSyncWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newCommissionSyncRuntime(ctx, config.Env, nil)
	util.ContinueOrFatal(err)

	go rt.dedup.Run(ctx)

	var wg sync.WaitGroup
	for _, name := range rt.registry.Names() {
		source, _ := rt.registry.Get(name)
		exchangeConfig := config.Env.Exchanges[string(name)]

		cycleTimeout := exchangeConfig.CycleTimeout
		if cycleTimeout <= 0 {
			cycleTimeout = constant.DefaultCycleTimeout
		}

		scheduler := commissionsync.NewScheduler(rt.service, source, commissionsync.SchedulerConfig{
			Interval:     exchangeConfig.SyncInterval,
			CycleTimeout: cycleTimeout,
			Locker:       rt.locker,
			LockTTL:      config.Env.CycleLock.TTL,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	logrus.WithField("exchanges", rt.registry.Names()).Info("commission sync worker started")

	ops := rt.closers()
	ops["commission sync schedulers"] = func(ctx context.Context) error {
		cancel()
		wg.Wait()
		return nil
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, ops)

	<-wait
}
