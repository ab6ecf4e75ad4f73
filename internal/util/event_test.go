package util

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestProcessWithTimeout(t *testing.T) {
	errBoom := errors.New("boom")

	err := ProcessWithTimeout(context.Background(), time.Second, "ok", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = ProcessWithTimeout(context.Background(), time.Second, "fail", func(ctx context.Context) error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}

	release := make(chan struct{})
	defer close(release)
	err = ProcessWithTimeout(context.Background(), 20*time.Millisecond, "stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "stuck") {
		t.Fatalf("err = %v, want deadline exceeded naming the task", err)
	}
}

func TestProcessWithTimeout_NoTimeout(t *testing.T) {
	called := false
	err := ProcessWithTimeout(context.Background(), 0, "direct", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("called=%v err=%v", called, err)
	}
}
