package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		base   time.Duration
		max    time.Duration
		retry  int
		expect time.Duration
	}{
		{name: "zero base disables delay", base: 0, max: time.Second, retry: 3, expect: 0},
		{name: "first retry uses base", base: 100 * time.Millisecond, max: time.Second, retry: 0, expect: 100 * time.Millisecond},
		{name: "doubles per retry", base: 100 * time.Millisecond, max: time.Second, retry: 2, expect: 400 * time.Millisecond},
		{name: "capped by max", base: 100 * time.Millisecond, max: time.Second, retry: 10, expect: time.Second},
		{name: "no cap when max is zero", base: time.Millisecond, max: 0, retry: 4, expect: 16 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Backoff(tt.base, tt.max, tt.retry); got != tt.expect {
				t.Fatalf("expected %s, got %s", tt.expect, got)
			}
		})
	}
}

func TestWaitForReturnsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitFor(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForUsesSleepHook(t *testing.T) {
	originalSleep := sleep
	var slept time.Duration
	sleep = func(d time.Duration) { slept = d }
	defer func() { sleep = originalSleep }()

	if err := WaitFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if slept != 3*time.Second {
		t.Fatalf("expected sleep of 3s, got %s", slept)
	}
}
