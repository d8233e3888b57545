// Package retry implements the fixed-interval failure policy shared by the
// capture and eviction workers: log the failure, wait one interval, and hand
// control back to the worker loop. There is no backoff and no attempt limit.
package retry

import (
	"context"
	"log/slog"
	"time"

	"pulsecam/internal/clock"
	"pulsecam/internal/faults"
	"pulsecam/internal/logging"
	"pulsecam/internal/metrics"
)

// Policy records failures and waits a fixed interval before the next attempt.
type Policy struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  metrics.Metrics
}

// Record logs err for operation with its error kind.
func (p Policy) Record(operation string, err error, attrs ...logging.Attr) {
	if err == nil {
		return
	}
	attrs = append(attrs,
		logging.String("operation", operation),
		logging.String("error_kind", faults.Kind(err)),
		logging.Error(err),
	)
	if !logging.HasAttrKey(attrs, logging.FieldImpact) {
		attrs = append(attrs, logging.String(logging.FieldImpact, "cycle abandoned; retrying after "+p.Interval.String()))
	}
	logging.ErrorWithContext(p.logger(), operation+" failed", operation+"_failed", attrs...)
}

// Wait records err, then sleeps Interval. It returns ctx.Err() if the wait is
// cut short by cancellation.
func (p Policy) Wait(ctx context.Context, operation string, err error, attrs ...logging.Attr) error {
	p.Record(operation, err, attrs...)
	metrics.OrNoop(p.Metrics).IncRetryWait(operation)
	p.logger().Info("waiting before retry",
		logging.String("operation", operation),
		logging.Duration("interval", p.Interval),
	)
	return clock.Sleep(ctx, clock.OrSystem(p.Clock), p.Interval)
}

func (p Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}
