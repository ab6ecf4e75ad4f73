package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

type operation func(ctx context.Context) error

// gracefulShutdown waits for a termination signal, then runs every cleanup
// operation concurrently. The process is force-exited once timeout elapses.
func gracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		defer close(wait)

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(signals)

		sig := <-signals
		logrus.WithField("signal", sig.String()).Info("shutting down")

		forceExit := time.AfterFunc(timeout, func() {
			logrus.Errorf("shutdown did not finish within %s, force exit", timeout)
			os.Exit(1)
		})
		defer forceExit.Stop()

		runCleanup(ctx, ops)
	}()

	return wait
}

func runCleanup(ctx context.Context, ops map[string]operation) {
	var wg sync.WaitGroup
	for name, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()

			logger := logrus.WithField("resource", name)
			logger.Info("cleaning up")
			if err := op(ctx); err != nil {
				logger.WithError(err).Error("clean up failed")
				return
			}
			logger.Info("shut down gracefully")
		}()
	}
	wg.Wait()
}
