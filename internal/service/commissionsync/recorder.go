package commissionsync

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/krobus00/rebate-sync/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type SubmissionJournal interface {
	Create(ctx context.Context, submission *entity.CommissionSubmission) error
}

// JournalRecorder stores every submission attempt, failed ones included.
type JournalRecorder struct {
	journal SubmissionJournal
	now     func() time.Time
}

func NewJournalRecorder(journal SubmissionJournal) *JournalRecorder {
	return &JournalRecorder{journal: journal, now: time.Now}
}

func (r *JournalRecorder) Record(ctx context.Context, exchange entity.ExchangeName, record entity.CommissionRecord, submitErr error) error {
	return r.journal.Create(ctx, entity.NewCommissionSubmission(exchange, record, submitErr, r.now()))
}

// EventRecorder publishes successfully submitted records to JetStream.
type EventRecorder struct {
	js  nats.JetStreamContext
	now func() time.Time
}

func NewEventRecorder(js nats.JetStreamContext) *EventRecorder {
	return &EventRecorder{js: js, now: time.Now}
}

func (r *EventRecorder) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.CommissionStreamName,
		Subjects:  []string{constant.CommissionStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Replicas:  1,
	}

	stream, err := r.js.StreamInfo(constant.CommissionStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.CommissionStreamName)
		_, err = r.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.CommissionStreamName)
	_, err = r.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.CommissionStreamName)

	return nil
}

func (r *EventRecorder) Record(_ context.Context, exchange entity.ExchangeName, record entity.CommissionRecord, submitErr error) error {
	if submitErr != nil {
		return nil
	}

	return util.PublishEvent(
		r.js,
		constant.GetCommissionSubmittedSubject(string(exchange)),
		entity.NewCommissionSubmittedEvent(exchange, record, r.now()),
	)
}

var _ entity.Publisher = (*EventRecorder)(nil)
