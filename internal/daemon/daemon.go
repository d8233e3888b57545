package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"pulsecam/internal/bus"
	"pulsecam/internal/capture"
	"pulsecam/internal/clock"
	"pulsecam/internal/config"
	"pulsecam/internal/device"
	"pulsecam/internal/eviction"
	"pulsecam/internal/faults"
	"pulsecam/internal/logging"
	"pulsecam/internal/metrics"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/resourcelock"
	"pulsecam/internal/retry"
)

const notConnected int32 = -1

// Options are the daemon's runtime settings.
type Options struct {
	LockPath       string
	ConnectTimeout time.Duration
	ValidateStore  bool
	Capture        capture.Options
	Eviction       eviction.Options
}

// OptionsFromConfig derives Options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LockPath:       cfg.LockPath(),
		ConnectTimeout: cfg.ConnectTimeout(),
		ValidateStore:  cfg.Store.ValidateOnStart,
		Capture: capture.Options{
			DeviceID: cfg.Capture.DeviceID,
			Topic:    cfg.Bus.Topic,
			QoS:      bus.QoS(cfg.Bus.QoS),
			Bucket:   cfg.Store.Bucket,
			Interval: cfg.CaptureInterval(),
		},
		Eviction: eviction.Options{
			RemoteCacheSize: cfg.Retention.RemoteCacheSize,
			Bucket:          cfg.Store.Bucket,
			Interval:        cfg.CleanupInterval(),
		},
	}
}

// Watcher is a background helper started with the workers, such as the
// hotplug monitor.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
}

// Dependencies are the capability implementations the daemon drives.
type Dependencies struct {
	Device   device.Device
	Store    objectstore.Store
	Bus      bus.Bus
	Watchers []Watcher
	Clock    clock.Clock
	Metrics  metrics.Metrics
	Logger   *slog.Logger
}

// Daemon runs the capture and eviction workers.
type Daemon struct {
	opts    Options
	deps    Dependencies
	clock   clock.Clock
	logger  *slog.Logger
	lock    *flock.Flock
	artLock *resourcelock.Lock

	running   atomic.Bool
	busStatus atomic.Int32

	mu       sync.Mutex
	capture  *capture.Worker
	eviction *eviction.Worker
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	BusStatus    string
	LockHolder   string
	LockFilePath string
	Capture      capture.Status
	Eviction     eviction.Status
}

// New validates dependencies and constructs a daemon.
func New(opts Options, deps Dependencies) (*Daemon, error) {
	if deps.Device == nil || deps.Store == nil || deps.Bus == nil {
		return nil, errors.New("daemon requires device, store, and bus")
	}
	if opts.LockPath == "" {
		return nil, errors.New("daemon requires a lock path")
	}
	logger := logging.NewComponentLogger(deps.Logger, "daemon")
	deps.Metrics = metrics.OrNoop(deps.Metrics)
	d := &Daemon{
		opts:    opts,
		deps:    deps,
		clock:   clock.OrSystem(deps.Clock),
		logger:  logger,
		lock:    flock.New(opts.LockPath),
		artLock: resourcelock.New("artifacts", resourcelock.WithLogger(logger)),
	}
	d.busStatus.Store(notConnected)
	return d, nil
}

// Run performs the startup sequence, runs both workers until ctx is
// cancelled, then shuts down in order. It returns nil after a cancellation
// and a fatal startup error when startup is refused.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return faults.Wrap(faults.ErrFatalStartup, "daemon", "acquire lock", d.opts.LockPath, err)
	}
	if !ok {
		return faults.Wrap(faults.ErrFatalStartup, "daemon", "acquire lock",
			"another pulsecam daemon instance is already running", nil)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
				logging.String("lock", d.opts.LockPath),
				logging.Error(err),
			)
		}
	}()

	if err := d.startup(ctx); err != nil {
		if ctx.Err() != nil && !faults.IsFatal(err) {
			return nil
		}
		return err
	}
	defer d.deps.Bus.Disconnect()

	for _, w := range d.deps.Watchers {
		if err := w.Start(ctx); err != nil {
			logging.WarnWithContext(d.logger, "watcher failed to start", "watcher_start_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "device presence is not tracked"),
			)
			continue
		}
		defer w.Stop()
	}

	policy := retry.Policy{
		Interval: d.opts.Capture.Interval,
		Clock:    d.clock,
		Metrics:  d.deps.Metrics,
	}
	captureWorker := capture.New(d.opts.Capture, capture.Dependencies{
		Device:  d.deps.Device,
		Store:   d.deps.Store,
		Bus:     d.deps.Bus,
		Lock:    d.artLock,
		Retry:   policy,
		Clock:   d.clock,
		Metrics: d.deps.Metrics,
		Logger:  d.deps.Logger,
	})
	evictionWorker := eviction.New(d.opts.Eviction, eviction.Dependencies{
		Device:  d.deps.Device,
		Store:   d.deps.Store,
		Lock:    d.artLock,
		Retry:   policy,
		Clock:   d.clock,
		Metrics: d.deps.Metrics,
		Logger:  d.deps.Logger,
	})
	d.mu.Lock()
	d.capture = captureWorker
	d.eviction = evictionWorker
	d.mu.Unlock()

	d.logger.Info("pulsecam daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.opts.LockPath),
		logging.String(logging.FieldDeviceID, d.opts.Capture.DeviceID),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = captureWorker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = evictionWorker.Run(ctx)
	}()

	<-ctx.Done()
	d.logger.Info("shutdown requested; waiting for workers", logging.String(logging.FieldEventType, "daemon_stopping"))
	wg.Wait()

	if err := d.deps.Device.Close(); err != nil {
		d.logger.Debug("device close failed", logging.Error(err))
	}
	d.logger.Info("pulsecam daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

// startup runs the bus handshake, then probes the store.
func (d *Daemon) startup(ctx context.Context) error {
	status, err := bus.AwaitConnected(ctx, d.deps.Bus, d.opts.ConnectTimeout, d.clock)
	if err == nil || status != bus.StatusAccepted {
		d.busStatus.Store(int32(status))
	}
	if err != nil {
		d.deps.Bus.Disconnect()
		return err
	}
	d.logger.Info("message bus handshake complete",
		logging.String(logging.FieldEventType, "bus_handshake"),
		logging.String("status", status.String()),
	)

	if d.opts.ValidateStore {
		if v, ok := d.deps.Store.(objectstore.Validator); ok {
			if err := v.Validate(ctx); err != nil {
				d.deps.Bus.Disconnect()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return faults.Wrap(faults.ErrFatalStartup, "daemon", "validate object store", "", err)
			}
		}
	}
	return nil
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	captureWorker, evictionWorker := d.capture, d.eviction
	d.mu.Unlock()

	busStatus := "not connected"
	if raw := d.busStatus.Load(); raw != notConnected {
		busStatus = bus.ConnectionStatus(raw).String()
	}
	status := Status{
		Running:      d.running.Load(),
		BusStatus:    busStatus,
		LockHolder:   d.artLock.Holder(),
		LockFilePath: d.opts.LockPath,
	}
	if captureWorker != nil {
		status.Capture = captureWorker.Status()
	}
	if evictionWorker != nil {
		status.Eviction = evictionWorker.Status()
	}
	return status
}

// String renders a one-line summary for logs.
func (s Status) String() string {
	return fmt.Sprintf("running=%t bus=%q capture=%s cycles=%d failures=%d evictions=%d",
		s.Running, s.BusStatus, s.Capture.State, s.Capture.Cycles, s.Capture.Failures, s.Eviction.Cycles)
}
