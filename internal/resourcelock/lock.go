// Package resourcelock provides the single mutual-exclusion domain guarding
// the local artifact directory. The capture and eviction workers share one
// Lock and run every filesystem-mutating phase through Do.
package resourcelock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"pulsecam/internal/logging"
)

// ErrReentrant is returned when a critical section tries to acquire the lock
// it already holds.
var ErrReentrant = errors.New("resource lock already held by this critical section")

// Lock is a named, non-reentrant mutex whose acquisition can be abandoned
// through a context.
type Lock struct {
	name   string
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu     sync.Mutex
	holder string
	since  time.Time
}

type holderKey struct{ lock *Lock }

// Option configures a Lock.
type Option func(*Lock)

// WithLogger records acquire and release at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs an unlocked Lock.
func New(name string, opts ...Option) *Lock {
	l := &Lock{
		name:   name,
		sem:    semaphore.NewWeighted(1),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the lock's name.
func (l *Lock) Name() string { return l.name }

// Do blocks until the lock is free, then runs fn as the named phase.
//
// If ctx is cancelled while waiting, Do returns ctx.Err() without running fn.
// Once acquired, fn receives a context detached from ctx's cancellation so the
// critical section always runs to completion; the lock is released on every
// exit path, including panics.
func (l *Lock) Do(ctx context.Context, phase string, fn func(ctx context.Context) error) error {
	if held, ok := ctx.Value(holderKey{l}).(bool); ok && held {
		return ErrReentrant
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.setHolder(phase)
	l.logger.Debug("lock acquired", logging.String("lock", l.name), logging.String(logging.FieldPhase, phase))

	defer func() {
		held := l.clearHolder()
		l.sem.Release(1)
		l.logger.Debug("lock released",
			logging.String("lock", l.name),
			logging.String(logging.FieldPhase, phase),
			logging.Duration("held", held),
		)
	}()

	inner := context.WithValue(context.WithoutCancel(ctx), holderKey{l}, true)
	return fn(inner)
}

// Holder returns the phase currently holding the lock, or "" when free.
func (l *Lock) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

func (l *Lock) setHolder(phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = phase
	l.since = time.Now()
}

func (l *Lock) clearHolder() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := time.Since(l.since)
	l.holder = ""
	l.since = time.Time{}
	return held
}
