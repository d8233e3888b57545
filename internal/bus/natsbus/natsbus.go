// Package natsbus publishes artifact announcements on a NATS subject.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"pulsecam/internal/bus"
	"pulsecam/internal/logging"
)

const (
	component   = "nats-bus"
	flushBudget = time.Second
)

var errEmptySubject = errors.New("empty subject")

// Options holds server connection parameters.
type Options struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string
	ConnectTimeout time.Duration
}

// Bus is a bus.Bus over core NATS. QoS is accepted for interface parity;
// core NATS delivery is at-most-once regardless.
type Bus struct {
	url    string
	opts   []nats.Option
	logger *slog.Logger

	mu sync.Mutex
	nc *nats.Conn
}

var _ bus.Bus = (*Bus)(nil)

// New prepares the connection options.
func New(opts Options, logger *slog.Logger) *Bus {
	logger = logging.NewComponentLogger(logger, component)
	name := opts.ClientID
	if name == "" {
		name = "pulsecam"
	}
	natsOpts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.WarnWithContext(logger, "disconnected from nats", "bus_connection_lost",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check nats server availability; the client reconnects automatically"),
				logging.String(logging.FieldImpact, "announcements are dropped until the connection returns"),
			)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats",
				logging.String(logging.FieldEventType, "bus_reconnected"),
				logging.String("url", nc.ConnectedUrl()),
			)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed")
		}),
	}
	if opts.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}
	if opts.ConnectTimeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(opts.ConnectTimeout))
	}
	return &Bus{
		url:    "nats://" + opts.Host + ":" + strconv.Itoa(opts.Port),
		opts:   natsOpts,
		logger: logger,
	}
}

// Connect dials the server. A successful dial reports StatusAccepted; a
// failed dial or authorization error is reported as Err.
func (b *Bus) Connect(ctx context.Context) <-chan bus.ConnectResult {
	results := make(chan bus.ConnectResult, 1)
	go func() {
		if err := ctx.Err(); err != nil {
			results <- bus.ConnectResult{Err: err}
			return
		}
		nc, err := nats.Connect(b.url, b.opts...)
		if err != nil {
			results <- bus.ConnectResult{Err: fmt.Errorf("connect %s: %w", b.url, err)}
			return
		}
		b.mu.Lock()
		b.nc = nc
		b.mu.Unlock()
		b.logger.Info("connected to nats",
			logging.String(logging.FieldEventType, "bus_connected"),
			logging.String("url", nc.ConnectedUrl()),
		)
		results <- bus.ConnectResult{Status: bus.StatusAccepted}
	}()
	return results
}

// Publish writes payload to subject.
func (b *Bus) Publish(_ context.Context, subject string, payload []byte, _ bus.QoS) error {
	if subject == "" {
		return errEmptySubject
	}
	b.mu.Lock()
	nc := b.nc
	b.mu.Unlock()
	if nc == nil || !nc.IsConnected() {
		return fmt.Errorf("publish %s: %w", subject, nats.ErrConnectionClosed)
	}
	if err := nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Status reports the connection state, "UNKNOWN" before Connect succeeds.
func (b *Bus) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc == nil {
		return "UNKNOWN"
	}
	return b.nc.Status().String()
}

// Disconnect flushes pending publishes then closes the connection.
func (b *Bus) Disconnect() {
	b.mu.Lock()
	nc := b.nc
	b.nc = nil
	b.mu.Unlock()
	if nc == nil {
		return
	}
	if nc.IsConnected() {
		if err := nc.FlushTimeout(flushBudget); err != nil {
			b.logger.Debug("nats flush before close failed", logging.Error(err))
		}
	}
	nc.Close()
}
