package util

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/nats-io/nats.go"
)

// ProcessWithTimeout runs callback under a derived timeout and returns as soon
// as either the callback finishes or the deadline passes. A callback that
// ignores its context keeps running in the background after the deadline.
func ProcessWithTimeout(ctx context.Context, timeout time.Duration, name string, callback func(ctx context.Context) error) error {
	if timeout <= 0 {
		return callback(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- callback(ctx)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("processing timeout for %s: %w", name, ctx.Err())
	case err := <-done:
		return err
	}
}

func PublishEvent(js nats.JetStreamContext, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = js.Publish(subject, payload)
	if err != nil {
		return err
	}

	return nil
}
