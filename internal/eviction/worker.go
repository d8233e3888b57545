// Package eviction enforces the retention limits on the local capture
// directory and the remote store on its own cadence.
package eviction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pulsecam/internal/clock"
	"pulsecam/internal/device"
	"pulsecam/internal/faults"
	"pulsecam/internal/logging"
	"pulsecam/internal/metrics"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/resourcelock"
	"pulsecam/internal/retention"
	"pulsecam/internal/retry"
)

const (
	component        = "eviction-worker"
	phaseLocalPrune  = "local-prune"
	phaseRemoteEvict = "remote-evict"
)

// Options carries the retention settings.
type Options struct {
	RemoteCacheSize int
	Bucket          string
	Interval        time.Duration
}

// Failure is one remote object that could not be deleted.
type Failure struct {
	ID  string
	Err error
}

// Result summarizes one cycle.
type Result struct {
	Listed   int
	Selected []string
	Deleted  []string
	Failed   []Failure
}

// Dependencies are the collaborators shared with the rest of the daemon.
type Dependencies struct {
	Device  device.Device
	Store   objectstore.Store
	Lock    *resourcelock.Lock
	Retry   retry.Policy
	Clock   clock.Clock
	Metrics metrics.Metrics
	Logger  *slog.Logger
}

// Worker is the eviction loop.
type Worker struct {
	opts    Options
	device  device.Device
	store   objectstore.Store
	lock    *resourcelock.Lock
	retry   retry.Policy
	clock   clock.Clock
	metrics metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	cycles  int64
	last    Result
	lastErr error
	lastRun time.Time
}

// New wires a worker.
func New(opts Options, deps Dependencies) *Worker {
	logger := logging.NewComponentLogger(deps.Logger, component).With(
		logging.String(logging.FieldWorker, "eviction"),
	)
	policy := deps.Retry
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Worker{
		opts:    opts,
		device:  deps.Device,
		store:   deps.Store,
		lock:    deps.Lock,
		retry:   policy,
		clock:   clock.OrSystem(deps.Clock),
		metrics: metrics.OrNoop(deps.Metrics),
		logger:  logger,
	}
}

// Run sleeps one interval, runs a cycle, and repeats until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("eviction worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.Duration("interval", w.opts.Interval),
		logging.Int("remote_cache_size", w.opts.RemoteCacheSize),
	)
	defer w.logger.Info("eviction worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))

	for {
		if err := clock.Sleep(ctx, w.clock, w.opts.Interval); err != nil {
			return nil
		}
		if _, err := w.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.retry.Record("remote_list", err,
				logging.String(logging.FieldBucket, w.opts.Bucket),
				logging.String(logging.FieldImpact, "remote store left unpruned until the next cycle"),
			)
		}
	}
}

// RunCycle prunes the local cache, lists the remote store, and deletes the
// oldest objects beyond the remote limit. Only a listing failure is
// returned; individual delete failures are reported in Result.
func (w *Worker) RunCycle(ctx context.Context) (Result, error) {
	start := w.clock.Now()
	defer func() {
		w.metrics.ObserveCycle("eviction", w.clock.Now().Sub(start).Seconds())
	}()

	if err := w.lock.Do(ctx, phaseLocalPrune, func(ctx context.Context) error {
		w.device.PruneLocalCache(ctx)
		return nil
	}); err != nil {
		return Result{}, err
	}

	objects, err := w.store.List(ctx, w.opts.Bucket)
	if err != nil {
		err = faults.Wrap(faults.ErrTransientStore, component, "list", w.opts.Bucket, err)
		w.record(Result{}, err)
		return Result{}, err
	}

	candidates := make([]retention.Candidate, 0, len(objects))
	for _, obj := range objects {
		candidates = append(candidates, retention.Candidate{ID: obj.ID, OrderingKey: obj.LastModified})
	}
	result := Result{
		Listed:   len(objects),
		Selected: retention.SelectForEviction(candidates, w.opts.RemoteCacheSize),
	}
	if len(result.Selected) == 0 {
		w.record(result, nil)
		return result, nil
	}

	err = w.lock.Do(ctx, phaseRemoteEvict, func(ctx context.Context) error {
		for _, id := range result.Selected {
			if err := w.store.Delete(ctx, id, w.opts.Bucket); err != nil {
				err = faults.Wrap(faults.ErrTransientStore, component, "delete", id, err)
				w.metrics.IncEviction(metrics.StoreRemote, metrics.ResultFailed)
				result.Failed = append(result.Failed, Failure{ID: id, Err: err})
				logging.ErrorWithContext(w.logger, "remote delete failed", "remote_delete_failed",
					logging.String(logging.FieldRemoteID, id),
					logging.String(logging.FieldBucket, w.opts.Bucket),
					logging.String("error_kind", faults.Kind(err)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check object-store permissions; the next cycle retries"),
					logging.String(logging.FieldImpact, "object kept past the retention limit"),
				)
				continue
			}
			w.metrics.IncEviction(metrics.StoreRemote, metrics.ResultOK)
			result.Deleted = append(result.Deleted, id)
		}
		return nil
	})
	w.record(result, err)
	if err != nil {
		return result, err
	}

	w.logger.Info("remote store pruned",
		logging.String(logging.FieldEventType, "remote_pruned"),
		logging.String(logging.FieldBucket, w.opts.Bucket),
		logging.Int("listed", result.Listed),
		logging.Int("deleted", len(result.Deleted)),
		logging.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (w *Worker) record(result Result, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cycles++
	w.last = result
	w.lastErr = err
	w.lastRun = w.clock.Now()
}

// Status is a snapshot for operators.
type Status struct {
	Cycles      int64
	LastRun     time.Time
	LastDeleted int
	LastFailed  int
	LastError   string
}

// Status returns counters and the last outcome.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := Status{
		Cycles:      w.cycles,
		LastRun:     w.lastRun,
		LastDeleted: len(w.last.Deleted),
		LastFailed:  len(w.last.Failed),
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	return status
}
