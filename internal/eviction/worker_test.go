package eviction_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"pulsecam/internal/clock/clocktest"
	"pulsecam/internal/eviction"
	"pulsecam/internal/faults"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/resourcelock"
	"pulsecam/internal/retry"
	"pulsecam/internal/testsupport"
)

type harness struct {
	log    *testsupport.EventLog
	clock  *clocktest.Clock
	device *testsupport.FakeDevice
	store  *testsupport.FakeStore
	lock   *resourcelock.Lock
	worker *eviction.Worker
}

func newHarness(t *testing.T, keep int) *harness {
	t.Helper()
	h := &harness{
		log:   &testsupport.EventLog{},
		clock: clocktest.New(time.Unix(1700000000, 0)),
		lock:  resourcelock.New("artifacts"),
	}
	h.device = &testsupport.FakeDevice{Log: h.log}
	h.store = testsupport.NewFakeStore(h.log, "images")
	h.worker = eviction.New(eviction.Options{
		RemoteCacheSize: keep,
		Bucket:          "images",
		Interval:        time.Minute,
	}, eviction.Dependencies{
		Device: h.device,
		Store:  h.store,
		Lock:   h.lock,
		Retry:  retry.Policy{Clock: h.clock, Interval: time.Minute},
		Clock:  h.clock,
	})
	return h
}

func seed(h *harness, n int) {
	base := time.Unix(1600000000, 0)
	for i := 1; i <= n; i++ {
		h.store.Seed(objectstore.Object{
			ID:           fmt.Sprintf("f%02d.jpg", i),
			LastModified: base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestCycleEvictsOldestBeyondLimit(t *testing.T) {
	h := newHarness(t, 10)
	seed(h, 12)

	result, err := h.worker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Listed != 12 {
		t.Fatalf("listed = %d", result.Listed)
	}
	if !slices.Equal(result.Deleted, []string{"f01.jpg", "f02.jpg"}) {
		t.Fatalf("deleted = %v", result.Deleted)
	}
	if len(h.store.Names()) != 10 || h.store.Names()[0] != "f03.jpg" {
		t.Fatalf("remaining = %v", h.store.Names())
	}
	if h.device.Prunes() != 1 {
		t.Fatalf("expected local prune, got %d", h.device.Prunes())
	}
}

func TestCycleWithinLimitDeletesNothing(t *testing.T) {
	h := newHarness(t, 10)
	seed(h, 10)

	result, err := h.worker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(result.Selected) != 0 || h.log.Count("store.delete") != 0 {
		t.Fatalf("expected no deletes, got %+v", result)
	}
}

func TestPartialDeleteFailureContinuesBatch(t *testing.T) {
	h := newHarness(t, 2)
	seed(h, 7)
	h.store.DeleteErr = map[string]error{"f03.jpg": errors.New("permission denied")}

	result, err := h.worker.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle should absorb delete failures, got %v", err)
	}
	if len(result.Selected) != 5 {
		t.Fatalf("selected = %v", result.Selected)
	}
	if !slices.Equal(result.Deleted, []string{"f01.jpg", "f02.jpg", "f04.jpg", "f05.jpg"}) {
		t.Fatalf("deleted = %v", result.Deleted)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != "f03.jpg" {
		t.Fatalf("failed = %+v", result.Failed)
	}
	if !errors.Is(result.Failed[0].Err, faults.ErrTransientStore) {
		t.Fatalf("expected transient store failure, got %v", result.Failed[0].Err)
	}
	if got := h.worker.Status(); got.LastDeleted != 4 || got.LastFailed != 1 {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestListFailureAbortsCycle(t *testing.T) {
	h := newHarness(t, 2)
	seed(h, 5)
	h.store.ListErr = errors.New("endpoint unreachable")

	_, err := h.worker.RunCycle(context.Background())
	if !errors.Is(err, faults.ErrTransientStore) {
		t.Fatalf("expected transient store error, got %v", err)
	}
	if h.log.Count("store.delete") != 0 {
		t.Fatal("no deletes expected after list failure")
	}
	if h.device.Prunes() != 1 {
		t.Fatal("local prune runs before listing")
	}
}

func TestDeletesRunUnderLock(t *testing.T) {
	h := newHarness(t, 1)
	seed(h, 3)
	var holders []string
	h.store.HoldDelete = func(string) { holders = append(holders, h.lock.Holder()) }

	if _, err := h.worker.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !slices.Equal(holders, []string{"remote-evict", "remote-evict"}) {
		t.Fatalf("holders during delete = %v", holders)
	}
}

func TestRunWaitsOneIntervalBeforeFirstCycle(t *testing.T) {
	h := newHarness(t, 2)
	seed(h, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	h.clock.BlockUntil(1)
	if h.device.Prunes() != 0 || h.log.Count("store.list") != 0 {
		t.Fatal("eviction must not run before the first interval elapses")
	}
	h.clock.Advance(time.Minute)
	h.clock.BlockUntil(1)
	if h.log.Count("store.list") != 1 || len(h.store.Deleted()) != 2 {
		t.Fatalf("expected one cycle with 2 deletes, events=%v", h.log.Events())
	}

	h.store.ListErr = errors.New("offline")
	h.clock.Advance(time.Minute)
	h.clock.BlockUntil(1)
	if h.log.Count("store.list") != 2 {
		t.Fatalf("expected second cycle, events=%v", h.log.Events())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got := h.worker.Status(); got.Cycles != 2 || got.LastError == "" {
		t.Fatalf("unexpected status %+v", got)
	}
}
