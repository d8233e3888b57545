// Package capture runs the capture cycle: take one artifact from the
// device, upload it, and announce it on the bus, all under the shared
// resource lock. Failures are logged and retried on the next cycle; the
// worker only stops when its context is cancelled.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pulsecam/internal/bus"
	"pulsecam/internal/clock"
	"pulsecam/internal/device"
	"pulsecam/internal/faults"
	"pulsecam/internal/logging"
	"pulsecam/internal/metrics"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/resourcelock"
	"pulsecam/internal/retry"
)

const (
	component = "capture-worker"
	lockPhase = "capture"
)

// State is the worker's position in the cycle.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateUploading
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateUploading:
		return "uploading"
	case StatePublishing:
		return "publishing"
	default:
		return "idle"
	}
}

// Options carries the per-cycle settings.
type Options struct {
	DeviceID string
	Topic    string
	QoS      bus.QoS
	Bucket   string
	Interval time.Duration
}

// Status is a snapshot for operators.
type Status struct {
	State       State
	Cycles      int64
	Failures    int64
	LastError   string
	LastSuccess time.Time
	LastRemote  string
}

// Dependencies are the collaborators shared with the rest of the daemon.
type Dependencies struct {
	Device  device.Device
	Store   objectstore.Store
	Bus     bus.Bus
	Lock    *resourcelock.Lock
	Retry   retry.Policy
	Clock   clock.Clock
	Metrics metrics.Metrics
	Logger  *slog.Logger
}

// Worker is the capture loop.
type Worker struct {
	opts    Options
	device  device.Device
	store   objectstore.Store
	bus     bus.Bus
	lock    *resourcelock.Lock
	retry   retry.Policy
	clock   clock.Clock
	metrics metrics.Metrics
	logger  *slog.Logger

	state    atomic.Int32
	cycles   atomic.Int64
	failures atomic.Int64

	mu          sync.Mutex
	lastErr     error
	lastSuccess time.Time
	lastRemote  string
}

// New wires a worker.
func New(opts Options, deps Dependencies) *Worker {
	logger := logging.NewComponentLogger(deps.Logger, component).With(
		logging.String(logging.FieldWorker, "capture"),
	)
	policy := deps.Retry
	if policy.Logger == nil {
		policy.Logger = logger
	}
	if policy.Interval <= 0 {
		policy.Interval = opts.Interval
	}
	return &Worker{
		opts:    opts,
		device:  deps.Device,
		store:   deps.Store,
		bus:     deps.Bus,
		lock:    deps.Lock,
		retry:   policy,
		clock:   clock.OrSystem(deps.Clock),
		metrics: metrics.OrNoop(deps.Metrics),
		logger:  logger,
	}
}

// Run loops until ctx is cancelled. A cycle that already holds the lock
// finishes before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("capture worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.Duration("interval", w.opts.Interval),
		logging.String(logging.FieldTopic, w.opts.Topic),
	)
	defer w.logger.Info("capture worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))

	for {
		if ctx.Err() != nil {
			return nil
		}
		step, err := w.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if waitErr := w.retry.Wait(ctx, step, err, logging.String(logging.FieldDeviceID, w.opts.DeviceID)); waitErr != nil {
				return nil
			}
			continue
		}
		if err := clock.Sleep(ctx, w.clock, w.opts.Interval); err != nil {
			return nil
		}
	}
}

// RunCycle performs one capture cycle under the resource lock and returns
// the name of the failing step alongside any error.
func (w *Worker) RunCycle(ctx context.Context) (string, error) {
	start := w.clock.Now()
	step := "capture_lock"
	err := w.lock.Do(ctx, lockPhase, func(ctx context.Context) error {
		var cycleErr error
		step, cycleErr = w.cycle(ctx)
		return cycleErr
	})
	w.metrics.ObserveCycle("capture", w.clock.Now().Sub(start).Seconds())

	w.cycles.Add(1)
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	if err != nil {
		w.failures.Add(1)
	}
	return step, err
}

func (w *Worker) cycle(ctx context.Context) (string, error) {
	defer w.setState(StateIdle)

	w.setState(StateCapturing)
	art, err := w.device.Capture(ctx)
	if err != nil {
		w.metrics.IncCapture(metrics.ResultFailed)
		if !errors.Is(err, faults.ErrTransientDevice) {
			err = faults.Wrap(faults.ErrTransientDevice, component, "capture", "", err)
		}
		return "capture", err
	}
	if art == nil {
		w.metrics.IncCapture(metrics.ResultFailed)
		return "capture", faults.Wrap(faults.ErrTransientDevice, component, "capture", "device returned no artifact", nil)
	}
	w.metrics.IncCapture(metrics.ResultOK)

	if art.HasLocalFile() {
		w.setState(StateUploading)
		remoteID, err := w.store.Upload(ctx, art.LocalPath, w.opts.Bucket)
		if err != nil {
			return "upload", faults.Wrap(faults.ErrTransientStore, component, "upload", art.LocalPath, err)
		}
		art.RemotePath = remoteID
	}

	art.DeviceID = w.opts.DeviceID
	w.setState(StatePublishing)
	payload, err := art.Payload()
	if err != nil {
		w.metrics.IncPublish(metrics.ResultFailed)
		return "publish", faults.Wrap(faults.ErrTransientBus, component, "encode payload", "", err)
	}
	if err := w.bus.Publish(ctx, w.opts.Topic, payload, w.opts.QoS); err != nil {
		w.metrics.IncPublish(metrics.ResultFailed)
		return "publish", faults.Wrap(faults.ErrTransientBus, component, "publish", w.opts.Topic, err)
	}
	w.metrics.IncPublish(metrics.ResultOK)

	w.mu.Lock()
	w.lastSuccess = art.CreationTimestamp
	w.lastRemote = art.RemotePath
	w.mu.Unlock()

	w.logger.Info("artifact published",
		logging.String(logging.FieldEventType, "artifact_published"),
		logging.String(logging.FieldPath, art.LocalPath),
		logging.String(logging.FieldRemoteID, art.RemotePath),
		logging.String(logging.FieldTopic, w.opts.Topic),
	)
	return "", nil
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// State returns the current cycle position.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Status returns counters and the last outcome.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := Status{
		State:       w.State(),
		Cycles:      w.cycles.Load(),
		Failures:    w.failures.Load(),
		LastSuccess: w.lastSuccess,
		LastRemote:  w.lastRemote,
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	return status
}
