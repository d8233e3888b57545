// Package redisbus publishes artifact announcements with Redis PUBLISH.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pulsecam/internal/bus"
	"pulsecam/internal/logging"
)

// Options holds server connection parameters.
type Options struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string
	ConnectTimeout time.Duration
}

// Bus is a bus.Bus over Redis pub/sub.
type Bus struct {
	client *redis.Client
	logger *slog.Logger
}

var _ bus.Bus = (*Bus)(nil)

// New creates the client. go-redis dials lazily, so Connect performs the
// handshake.
func New(opts Options, logger *slog.Logger) *Bus {
	redisOpts := &redis.Options{
		Addr:       net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Username:   opts.Username,
		Password:   opts.Password,
		ClientName: opts.ClientID,
	}
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	return &Bus{
		client: redis.NewClient(redisOpts),
		logger: logging.NewComponentLogger(logger, "redis-bus"),
	}
}

// Connect sends PING. Authentication and dial failures come back as Err.
func (b *Bus) Connect(ctx context.Context) <-chan bus.ConnectResult {
	results := make(chan bus.ConnectResult, 1)
	go func() {
		if err := b.client.Ping(ctx).Err(); err != nil {
			results <- bus.ConnectResult{Err: fmt.Errorf("ping %s: %w", b.client.Options().Addr, err)}
			return
		}
		b.logger.Info("connected to redis",
			logging.String(logging.FieldEventType, "bus_connected"),
			logging.String("addr", b.client.Options().Addr),
		)
		results <- bus.ConnectResult{Status: bus.StatusAccepted}
	}()
	return results
}

// Publish sends payload to channel. Redis pub/sub has no delivery levels so
// qos is ignored.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte, _ bus.QoS) error {
	receivers, err := b.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	b.logger.Debug("published",
		logging.String(logging.FieldTopic, channel),
		logging.Int64("receivers", receivers),
	)
	return nil
}

// Disconnect closes the client pool.
func (b *Bus) Disconnect() {
	if err := b.client.Close(); err != nil {
		b.logger.Debug("redis close failed", logging.Error(err))
	}
}
