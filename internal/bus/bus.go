// Package bus defines the message-bus capability the capture worker
// announces artifacts on, and the bounded startup handshake the daemon runs
// before any worker starts.
package bus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pulsecam/internal/clock"
	"pulsecam/internal/faults"
)

// ConnectionStatus is the broker's answer to a connection attempt. Values
// follow the MQTT CONNACK return codes.
type ConnectionStatus int

const (
	StatusAccepted             ConnectionStatus = 0
	StatusUnacceptableProtocol ConnectionStatus = 1
	StatusIdentifierRejected   ConnectionStatus = 2
	StatusServerUnavailable    ConnectionStatus = 3
	StatusBadCredentials       ConnectionStatus = 4
	StatusNotAuthorized        ConnectionStatus = 5
)

// Recognized reports whether the daemon may start with this status. A
// server-unavailable answer is accepted because the client keeps
// reconnecting in the background.
func (s ConnectionStatus) Recognized() bool {
	return s == StatusAccepted || s == StatusServerUnavailable
}

func (s ConnectionStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusUnacceptableProtocol:
		return "unacceptable protocol version"
	case StatusIdentifierRejected:
		return "identifier rejected"
	case StatusServerUnavailable:
		return "server unavailable"
	case StatusBadCredentials:
		return "bad username or password"
	case StatusNotAuthorized:
		return "not authorized"
	default:
		return "status " + strconv.Itoa(int(s))
	}
}

// QoS is the delivery-assurance level passed through to the transport.
type QoS byte

// ConnectResult is delivered exactly once per Connect call.
type ConnectResult struct {
	Status ConnectionStatus
	Err    error
}

// Bus is the message-bus capability.
type Bus interface {
	// Connect starts the handshake and returns a channel that receives one
	// result.
	Connect(ctx context.Context) <-chan ConnectResult
	// Publish hands payload to the transport without waiting for broker
	// acknowledgement.
	Publish(ctx context.Context, topic string, payload []byte, qos QoS) error
	// Disconnect stops background delivery and closes the connection.
	Disconnect()
}

// Result returns a single-slot channel already holding result.
func Result(status ConnectionStatus, err error) <-chan ConnectResult {
	ch := make(chan ConnectResult, 1)
	ch <- ConnectResult{Status: status, Err: err}
	return ch
}

// AwaitConnected runs the handshake and waits at most timeout for it to
// report. Unrecognized statuses, handshake errors and timeouts are fatal
// startup errors.
func AwaitConnected(ctx context.Context, b Bus, timeout time.Duration, clk clock.Clock) (ConnectionStatus, error) {
	clk = clock.OrSystem(clk)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := b.Connect(waitCtx)
	select {
	case res := <-results:
		if res.Err != nil {
			return res.Status, faults.Wrap(faults.ErrFatalStartup, "bus", "connect", "handshake failed", res.Err)
		}
		if !res.Status.Recognized() {
			return res.Status, faults.Wrap(faults.ErrFatalStartup, "bus", "connect",
				fmt.Sprintf("broker refused connection: %s (%d)", res.Status, int(res.Status)), nil)
		}
		return res.Status, nil
	case <-clk.After(waitCtx, timeout):
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, faults.Wrap(faults.ErrFatalStartup, "bus", "connect",
			fmt.Sprintf("no handshake result within %s", timeout), nil)
	}
}
