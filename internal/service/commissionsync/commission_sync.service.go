package commissionsync

import (
	"context"
	"sort"
	"time"

	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/krobus00/rebate-sync/internal/service/backend"
	"github.com/sirupsen/logrus"
)

type WatermarkStore interface {
	Watermark(exchange entity.ExchangeName) time.Time
	Advance(ctx context.Context, exchange entity.ExchangeName, to time.Time) (bool, error)
}

type Deduplicator interface {
	Has(exchange entity.ExchangeName, record entity.CommissionRecord) bool
	Add(exchange entity.ExchangeName, record entity.CommissionRecord)
}

// Recorder observes every submission attempt. Recorder errors are logged and
// never affect the cycle.
type Recorder interface {
	Record(ctx context.Context, exchange entity.ExchangeName, record entity.CommissionRecord, submitErr error) error
}

type Option func(*CommissionSyncService)

func WithClock(now func() time.Time) Option {
	return func(s *CommissionSyncService) {
		s.now = now
	}
}

// WithTestMode reads a fixed lookback window instead of the watermark, swaps
// the submitter for a logging one and leaves the store and recorders untouched.
func WithTestMode(enabled bool, lookback time.Duration) Option {
	return func(s *CommissionSyncService) {
		s.testMode = enabled
		if lookback > 0 {
			s.testLookback = lookback
		}
	}
}

func WithRecorders(recorders ...Recorder) Option {
	return func(s *CommissionSyncService) {
		for _, recorder := range recorders {
			if recorder != nil {
				s.recorders = append(s.recorders, recorder)
			}
		}
	}
}

type CycleResult struct {
	Window     entity.SyncWindow
	Fetched    int
	Normalized int
	Submitted  int
	Failed     int
	Skipped    int
	Advanced   bool
	NoOp       bool
}

type CommissionSyncService struct {
	store        WatermarkStore
	dedup        Deduplicator
	submitter    backend.Submitter
	recorders    []Recorder
	testMode     bool
	testLookback time.Duration
	now          func() time.Time
}

func NewCommissionSyncService(store WatermarkStore, dedup Deduplicator, submitter backend.Submitter, opts ...Option) *CommissionSyncService {
	s := &CommissionSyncService{
		store:        store,
		dedup:        dedup,
		submitter:    submitter,
		testLookback: constant.DefaultTestLookback,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.testMode {
		s.submitter = backend.NewDryRunSubmitter()
	}

	return s
}

func (s *CommissionSyncService) TestMode() bool {
	return s.testMode
}

// RunCycle performs one fetch, normalize, submit and advance pass for source.
// A fetch or normalize error aborts the cycle and keeps the watermark, while
// per-record submission failures do not.
func (s *CommissionSyncService) RunCycle(ctx context.Context, source entity.CommissionSource) (CycleResult, error) {
	var result CycleResult

	exchange := source.Name()
	end := s.now()
	start := end.Add(-s.testLookback)
	if !s.testMode {
		start = s.store.Watermark(exchange)
	}

	logger := logrus.WithField("exchange", exchange)

	if (entity.SyncWindow{Start: start, End: end}).IsEmpty() {
		result.NoOp = true
		logger.WithFields(logrus.Fields{
			"start": start,
			"end":   end,
		}).Debug("sync window is empty, skipping cycle")
		return result, nil
	}

	window := source.ComputeWindow(start, end)
	result.Window = window
	logger = logger.WithFields(logrus.Fields{
		"window_start": window.Start.UTC().Format(time.RFC3339),
		"window_end":   window.End.UTC().Format(time.RFC3339),
		"test_mode":    s.testMode,
	})
	if !window.Start.Equal(start) {
		logger.WithField("watermark", start.UTC().Format(time.RFC3339)).Warn("sync window clamped, older data is skipped")
	}

	raws, err := source.FetchRaw(ctx, window)
	if err != nil {
		logger.WithError(err).Error("failed to fetch commissions")
		return result, err
	}
	result.Fetched = len(raws)

	records, err := source.Normalize(ctx, raws)
	if err != nil {
		logger.WithError(err).Error("failed to normalize commissions")
		return result, err
	}
	result.Normalized = len(records)

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SourceTime.Before(records[j].SourceTime)
	})

	for _, record := range records {
		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("cycle cancelled before all records were processed")
			return result, ctx.Err()
		}

		if !record.FeeUSDT.IsPositive() {
			result.Skipped++
			logger.WithField("exchange_uid", record.ExchangeUID).Warn("skip record without positive usdt fee")
			continue
		}
		if s.dedup.Has(exchange, record) {
			result.Skipped++
			continue
		}

		err := s.submitter.Submit(ctx, exchange, record)
		s.dedup.Add(exchange, record)
		if err != nil {
			result.Failed++
			logger.WithFields(logrus.Fields{
				"exchange_uid": record.ExchangeUID,
				"trade_date":   record.TradeDate,
				"sub_type":     record.SubType,
			}).WithError(err).Error("failed to submit commission record")
		} else {
			result.Submitted++
		}

		s.record(ctx, exchange, record, err)
	}

	if s.testMode {
		logger.WithFields(logrus.Fields{
			"fetched":   result.Fetched,
			"submitted": result.Submitted,
			"skipped":   result.Skipped,
		}).Info("[test mode] cycle finished, watermark not advanced")
		return result, nil
	}

	advanced, err := s.store.Advance(ctx, exchange, window.End)
	result.Advanced = advanced
	if err != nil {
		logger.WithError(err).Error("failed to persist watermark")
	}

	logger.WithFields(logrus.Fields{
		"fetched":   result.Fetched,
		"submitted": result.Submitted,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("commission sync cycle finished")

	return result, nil
}

func (s *CommissionSyncService) record(ctx context.Context, exchange entity.ExchangeName, record entity.CommissionRecord, submitErr error) {
	if s.testMode {
		return
	}

	for _, recorder := range s.recorders {
		if err := recorder.Record(ctx, exchange, record, submitErr); err != nil {
			logrus.WithField("exchange", exchange).WithError(err).Warn("failed to record submission")
		}
	}
}
