package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"pulsecam/internal/bus"
	"pulsecam/internal/capture"
	"pulsecam/internal/clock"
	"pulsecam/internal/clock/clocktest"
	"pulsecam/internal/daemon"
	"pulsecam/internal/eviction"
	"pulsecam/internal/faults"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/testsupport"
)

type fixture struct {
	log    *testsupport.EventLog
	device *testsupport.FakeDevice
	store  *testsupport.FakeStore
	bus    *testsupport.FakeBus
	opts   daemon.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := &testsupport.EventLog{}
	return &fixture{
		log:    log,
		device: &testsupport.FakeDevice{Log: log, Dir: t.TempDir()},
		store:  testsupport.NewFakeStore(log, "images"),
		bus:    &testsupport.FakeBus{Log: log},
		opts: daemon.Options{
			LockPath:       filepath.Join(t.TempDir(), "pulsecam.lock"),
			ConnectTimeout: 10 * time.Second,
			Capture: capture.Options{
				DeviceID: "cam-1",
				Topic:    "image/latest",
				Bucket:   "images",
				Interval: 10 * time.Second,
			},
			Eviction: eviction.Options{
				RemoteCacheSize: 2,
				Bucket:          "images",
				Interval:        time.Minute,
			},
		},
	}
}

func (f *fixture) daemon(t *testing.T, clk clock.Clock) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(f.opts, daemon.Dependencies{
		Device: f.device,
		Store:  f.store,
		Bus:    f.bus,
		Clock:  clk,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestRejectedHandshakeIsFatalAndTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.bus.Status = bus.StatusNotAuthorized
	d := f.daemon(t, nil)

	err := d.Run(context.Background())
	if !errors.Is(err, faults.ErrFatalStartup) {
		t.Fatalf("expected fatal startup error, got %v", err)
	}
	if f.device.Captures() != 0 || f.device.Prunes() != 0 {
		t.Fatal("device must not be used after a rejected handshake")
	}
	if f.store.Calls() != 0 {
		t.Fatal("store must not be used after a rejected handshake")
	}
	if got := d.Status().BusStatus; got != "not authorized" {
		t.Fatalf("bus status = %q", got)
	}

	relock := flock.New(f.opts.LockPath)
	ok, err := relock.TryLock()
	if err != nil || !ok {
		t.Fatalf("instance lock should be released, ok=%v err=%v", ok, err)
	}
	_ = relock.Unlock()
}

func TestHandshakeTimeoutIsFatal(t *testing.T) {
	f := newFixture(t)
	f.bus.Silent = true
	clk := clocktest.New(time.Unix(0, 0))
	d := f.daemon(t, clk)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	clk.BlockUntil(1)
	clk.Advance(10 * time.Second)

	if err := <-done; !errors.Is(err, faults.ErrFatalStartup) {
		t.Fatalf("expected fatal startup on timeout, got %v", err)
	}
	if f.device.Captures() != 0 {
		t.Fatal("no capture expected")
	}
}

func TestHandshakeErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.bus.ConnectErr = errors.New("connection refused")
	if err := f.daemon(t, nil).Run(context.Background()); !errors.Is(err, faults.ErrFatalStartup) {
		t.Fatalf("expected fatal startup error, got %v", err)
	}
}

type failingValidator struct {
	*testsupport.FakeStore
}

func (failingValidator) Validate(context.Context) error { return errors.New("bucket missing") }

func TestStoreValidationFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.opts.ValidateStore = true
	d, err := daemon.New(f.opts, daemon.Dependencies{
		Device: f.device,
		Store:  failingValidator{f.store},
		Bus:    f.bus,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = d.Run(context.Background())
	if !errors.Is(err, faults.ErrFatalStartup) || !strings.Contains(err.Error(), "bucket missing") {
		t.Fatalf("expected fatal validation error, got %v", err)
	}
	if f.bus.Disconnects() == 0 {
		t.Fatal("bus should be disconnected after a refused startup")
	}
}

type blockingValidator struct {
	*testsupport.FakeStore
	started chan struct{}
}

func (v blockingValidator) Validate(ctx context.Context) error {
	close(v.started)
	<-ctx.Done()
	return fmt.Errorf("head bucket: %w", ctx.Err())
}

func TestShutdownDuringStoreValidationIsGraceful(t *testing.T) {
	f := newFixture(t)
	f.opts.ValidateStore = true
	validator := blockingValidator{FakeStore: f.store, started: make(chan struct{})}
	d, err := daemon.New(f.opts, daemon.Dependencies{
		Device: f.device,
		Store:  validator,
		Bus:    f.bus,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-validator.started
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected graceful shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if f.device.Captures() != 0 {
		t.Fatal("no capture expected when shutdown interrupts startup")
	}
	if f.bus.Disconnects() == 0 {
		t.Fatal("bus should be disconnected after an interrupted startup")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	f := newFixture(t)
	holder := flock.New(f.opts.LockPath)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer holder.Unlock()

	err := f.daemon(t, nil).Run(context.Background())
	if !errors.Is(err, faults.ErrFatalStartup) || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected single-instance refusal, got %v", err)
	}
	if f.bus.Connects() != 0 {
		t.Fatal("handshake must not start without the instance lock")
	}
}

func TestRunCapturesUntilCancelledThenDisconnects(t *testing.T) {
	f := newFixture(t)
	clk := clocktest.New(time.Unix(1700000000, 0))
	d := f.daemon(t, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	if !testsupport.WaitFor(2*time.Second, func() bool { return d.Status().Capture.Cycles == 1 }) {
		t.Fatal("first capture cycle never completed")
	}
	if len(f.bus.Published()) != 1 {
		t.Fatalf("expected an immediate first capture, got %d publishes", len(f.bus.Published()))
	}
	status := d.Status()
	if !status.Running || status.BusStatus != "accepted" || status.Capture.Cycles != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	events := f.log.Events()
	if events[len(events)-1] != "bus.disconnect" {
		t.Fatalf("bus should be disconnected last, events=%v", events)
	}
	if !f.device.Closed() {
		t.Fatal("device should be closed on shutdown")
	}
	if d.Status().Running {
		t.Fatal("daemon should report stopped")
	}
}

func TestCaptureAndEvictionNeverInterleave(t *testing.T) {
	f := newFixture(t)
	f.opts.Capture.Interval = time.Millisecond
	f.opts.Eviction.Interval = time.Millisecond
	f.opts.Eviction.RemoteCacheSize = 2
	f.device.Hold = func(context.Context) { time.Sleep(200 * time.Microsecond) }
	f.store.HoldDelete = func(string) { time.Sleep(200 * time.Microsecond) }
	base := time.Unix(1600000000, 0)
	for i := 0; i < 20; i++ {
		f.store.Seed(objectstore.Object{ID: fmt.Sprintf("seed-%02d.jpg", i), LastModified: base.Add(time.Duration(i) * time.Second)})
	}
	d := f.daemon(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	if !testsupport.WaitFor(5*time.Second, func() bool {
		return len(f.bus.Published()) >= 20 && len(f.store.Deleted()) >= 20
	}) {
		t.Fatalf("workers made too little progress: publishes=%d deletes=%d", len(f.bus.Published()), len(f.store.Deleted()))
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	inCapture, inDelete := false, false
	for i, event := range f.log.Events() {
		switch {
		case event == "device.capture":
			if inDelete {
				t.Fatalf("event %d: capture started during a remote delete", i)
			}
			inCapture = true
		case strings.HasPrefix(event, "bus.publish"):
			inCapture = false
		case event == "device.prune":
			if inCapture {
				t.Fatalf("event %d: local prune inside a capture cycle", i)
			}
		case strings.HasPrefix(event, "store.delete.begin"):
			if inCapture {
				t.Fatalf("event %d: delete between upload and publish", i)
			}
			inDelete = true
		case strings.HasPrefix(event, "store.delete.end"):
			inDelete = false
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCacheSizes(4, 7))
	opts := daemon.OptionsFromConfig(cfg)
	if opts.Capture.Interval != 10*time.Second || opts.Eviction.Interval != time.Minute {
		t.Fatalf("unexpected cadences %+v", opts)
	}
	if opts.Eviction.RemoteCacheSize != 7 || opts.Capture.Topic != "image/latest" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.LockPath != filepath.Join(cfg.Paths.LogDir, "pulsecam.lock") {
		t.Fatalf("unexpected lock path %q", opts.LockPath)
	}
}
