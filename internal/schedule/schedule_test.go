package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRefresherRejectsBadSpec(t *testing.T) {
	if _, err := NewRefresher("x", "every now and then", nil, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestRunExecutesImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	r, err := NewRefresher("feeds", "@every 1h", time.UTC, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("job did not run on start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one run, got %d", calls.Load())
	}
}

func TestRunOnceRecordsError(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRefresher("feeds", "*/30 * * * *", nil, func(context.Context) error { return boom })
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}

	r.RunOnce(context.Background())
	at, lastErr := r.Last()
	if at.IsZero() || !errors.Is(lastErr, boom) {
		t.Fatalf("expected recorded failure, got %s %v", at, lastErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.job = func(context.Context) error { return nil }
	r.RunOnce(ctx)
	if _, lastErr := r.Last(); !errors.Is(lastErr, boom) {
		t.Fatalf("cancelled context must not run the job")
	}
}
