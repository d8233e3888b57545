package clock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulsecam/internal/clock"
)

func TestSystemAfterFires(t *testing.T) {
	start := time.Now()
	<-clock.System().After(context.Background(), 5*time.Millisecond)
	if time.Since(start) < 5*time.Millisecond {
		t.Fatal("After returned before the delay elapsed")
	}
}

func TestSleepReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := clock.Sleep(ctx, clock.System(), time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleepNilClockUsesSystem(t *testing.T) {
	if err := clock.Sleep(context.Background(), nil, 0); err != nil {
		t.Fatalf("Sleep returned %v", err)
	}
}
