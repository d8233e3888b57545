// Package mqttbus publishes artifact announcements through an MQTT broker
// using the Eclipse Paho client.
package mqttbus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"pulsecam/internal/bus"
	"pulsecam/internal/clock"
	"pulsecam/internal/logging"
)

const (
	component       = "mqtt-bus"
	disconnectQuiet = 250
	reconnectDelay  = 5 * time.Second
)

// Options holds broker connection parameters.
type Options struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string
	ConnectTimeout time.Duration
}

// returnCoder is satisfied by paho's *ConnectToken.
type returnCoder interface {
	ReturnCode() byte
}

var newClient = mqtt.NewClient

// Bus is a bus.Bus over MQTT.
type Bus struct {
	client mqtt.Client
	logger *slog.Logger
	clock  clock.Clock
	broker string

	stopOnce sync.Once
	stop     chan struct{}
}

var _ bus.Bus = (*Bus)(nil)

// New configures the client. No network traffic happens until Connect.
func New(opts Options, logger *slog.Logger, clk clock.Clock) *Bus {
	logger = logging.NewComponentLogger(logger, component)
	broker := "tcp://" + opts.Host + ":" + strconv.Itoa(opts.Port)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "pulsecam-" + uuid.NewString()[:8]
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(false)
	if opts.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
	}
	clientOpts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to broker",
			logging.String(logging.FieldEventType, "bus_connected"),
			logging.String("broker", broker),
		)
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.WarnWithContext(logger, "broker connection lost", "bus_connection_lost",
			logging.String("broker", broker),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check broker availability; the client reconnects automatically"),
			logging.String(logging.FieldImpact, "announcements are dropped until the connection returns"),
		)
	})

	return &Bus{
		client: newClient(clientOpts),
		logger: logger,
		clock:  clock.OrSystem(clk),
		broker: broker,
		stop:   make(chan struct{}),
	}
}

// Connect starts the MQTT handshake. The CONNACK return code becomes the
// result status; a transport failure without a return code becomes Err.
func (b *Bus) Connect(ctx context.Context) <-chan bus.ConnectResult {
	results := make(chan bus.ConnectResult, 1)
	go func() {
		status, err := b.connectOnce(ctx)
		results <- bus.ConnectResult{Status: status, Err: err}
		if err == nil && status == bus.StatusServerUnavailable {
			go b.reconnectLoop()
		}
	}()
	return results
}

func (b *Bus) connectOnce(ctx context.Context) (bus.ConnectionStatus, error) {
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	var code byte
	if rc, ok := token.(returnCoder); ok {
		code = rc.ReturnCode()
	}
	if code != 0 {
		return bus.ConnectionStatus(code), nil
	}
	if err := token.Error(); err != nil {
		return 0, fmt.Errorf("connect %s: %w", b.broker, err)
	}
	return bus.StatusAccepted, nil
}

// reconnectLoop keeps retrying after the broker answered "server
// unavailable", since paho only auto-reconnects once a session existed.
func (b *Bus) reconnectLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-b.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; ; attempt++ {
		if err := clock.Sleep(ctx, b.clock, reconnectDelay); err != nil {
			return
		}
		status, err := b.connectOnce(ctx)
		if err == nil && status == bus.StatusAccepted {
			return
		}
		b.logger.Debug("broker still unavailable",
			logging.Int(logging.FieldAttempt, attempt),
			logging.String("status", status.String()),
			logging.Error(err),
		)
	}
}

// Publish queues payload. Delivery completion is logged asynchronously.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte, qos bus.QoS) error {
	if !b.client.IsConnected() {
		return fmt.Errorf("publish %s: %w", topic, mqtt.ErrNotConnected)
	}
	token := b.client.Publish(topic, byte(qos), false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			logging.WarnWithContext(b.logger, "publish failed", "bus_publish_failed",
				logging.String(logging.FieldTopic, topic),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check broker logs and topic permissions"),
				logging.String(logging.FieldImpact, "subscribers miss this announcement"),
			)
		}
	}()
	return nil
}

// Disconnect stops the reconnect loop and closes the session.
func (b *Bus) Disconnect() {
	b.stopOnce.Do(func() {
		close(b.stop)
		if b.client.IsConnectionOpen() {
			b.client.Disconnect(disconnectQuiet)
		}
	})
}
