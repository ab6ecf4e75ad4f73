package commissionsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/krobus00/rebate-sync/internal/util"
	"github.com/sirupsen/logrus"
)

const lockReleaseTimeout = 5 * time.Second

var ErrCycleInProgress = errors.New("previous sync cycle is still running")

// CycleLocker guards a cycle across processes sharing the same state.
type CycleLocker interface {
	AcquireProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error)
	ReleaseProcessingLock(ctx context.Context, key string, owner string) error
}

type SchedulerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	Locker       CycleLocker
	LockTTL      time.Duration
}

// Scheduler drives one exchange on its own ticker. A tick that fires while the
// previous cycle is still running is skipped.
type Scheduler struct {
	service      *CommissionSyncService
	source       entity.CommissionSource
	interval     time.Duration
	cycleTimeout time.Duration
	locker       CycleLocker
	lockTTL      time.Duration
	owner        string

	running sync.Mutex
	wg      sync.WaitGroup
}

func NewScheduler(service *CommissionSyncService, source entity.CommissionSource, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = constant.DefaultSyncInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.Interval
	}

	return &Scheduler{
		service:      service,
		source:       source,
		interval:     cfg.Interval,
		cycleTimeout: cfg.CycleTimeout,
		locker:       cfg.Locker,
		lockTTL:      cfg.LockTTL,
		owner:        uuid.NewString(),
	}
}

// Run starts a cycle immediately and then on every tick until ctx is done. It
// returns once the in-flight cycle, if any, has finished.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"exchange": s.source.Name(),
		"interval": s.interval.String(),
	}).Info("commission sync scheduler started")

	s.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			logrus.WithField("exchange", s.source.Name()).Info("commission sync scheduler stopped")
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.Tick(ctx)
		switch {
		case errors.Is(err, ErrCycleInProgress):
			logrus.WithField("exchange", s.source.Name()).Warn("skipping tick, previous cycle still running")
		case err != nil && ctx.Err() == nil:
			logrus.WithField("exchange", s.source.Name()).WithError(err).Error("commission sync cycle failed")
		}
	}()
}

// Tick runs a single guarded cycle bounded by the cycle timeout. The guard is
// held until the cycle really returns, even after a timeout.
func (s *Scheduler) Tick(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrCycleInProgress
	}

	name := fmt.Sprintf("%s commission sync", s.source.Name())
	return util.ProcessWithTimeout(ctx, s.cycleTimeout, name, func(ctx context.Context) error {
		defer s.running.Unlock()

		release, err := s.acquire(ctx)
		if err != nil {
			return err
		}
		defer release()

		_, err = s.service.RunCycle(ctx, s.source)
		return err
	})
}

func (s *Scheduler) acquire(ctx context.Context) (func(), error) {
	if s.locker == nil || s.service.TestMode() {
		return func() {}, nil
	}

	key := cycleLockKey(s.source.Name())
	acquired, err := s.locker.AcquireProcessingLock(ctx, key, s.lockTTL, s.owner)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !acquired {
		return nil, ErrCycleInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()

		if err := s.locker.ReleaseProcessingLock(releaseCtx, key, s.owner); err != nil {
			logrus.WithField("exchange", s.source.Name()).WithError(err).Warn("failed to release cycle lock")
		}
	}, nil
}

func cycleLockKey(exchange entity.ExchangeName) string {
	return fmt.Sprintf("%s:cycle:%s", constant.DefaultStateRedisKey, exchange)
}
