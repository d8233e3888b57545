// Package hotplug tracks whether a video4linux node is attached by listening
// to udev netlink events.
package hotplug

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"pulsecam/internal/logging"
)

// Monitor reports presence changes for one device node.
type Monitor struct {
	logger *slog.Logger
	node   string

	mu      sync.Mutex
	present bool
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New creates a monitor for node. Presence starts from whether the node
// currently exists.
func New(node string, logger *slog.Logger) *Monitor {
	node = strings.TrimSpace(node)
	if node == "" {
		return nil
	}
	_, err := os.Stat(node)
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "hotplug"),
		node:    node,
		present: err == nil,
	}
}

// Present reports whether the device node is attached. A nil monitor always
// reports present.
func (m *Monitor) Present() bool {
	if m == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present
}

// Start begins listening for udev events. A netlink connection failure is
// logged and leaves the monitor reporting its initial presence.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "netlink connect failed; camera hotplug not tracked", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "captures are attempted even while the camera is unplugged"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.String(logging.FieldPath, m.node),
		logging.Bool("present", m.present),
	)
	return nil
}

// Stop shuts down the monitor. It is safe to call on an unstarted or nil monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Running reports whether the monitor is listening.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera presence may be stale"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION add or remove.
func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	devname := deviceName(uevent)
	if devname != m.node {
		m.logger.Debug("ignoring event for other device",
			logging.String("device", devname),
			logging.String("configured_device", m.node),
		)
		return
	}

	var present bool
	switch uevent.Action {
	case netlink.ADD:
		present = true
	case netlink.REMOVE:
		present = false
	default:
		return
	}

	m.mu.Lock()
	changed := m.present != present
	m.present = present
	m.mu.Unlock()
	if !changed {
		return
	}

	if present {
		m.logger.Info("camera attached",
			logging.String(logging.FieldEventType, "camera_attached"),
			logging.String(logging.FieldPath, devname),
		)
		return
	}
	logging.WarnWithContext(m.logger, "camera detached", "camera_detached",
		logging.String(logging.FieldPath, devname),
		logging.String(logging.FieldErrorHint, "reconnect the camera"),
		logging.String(logging.FieldImpact, "captures fail until the camera returns"),
	)
}

// deviceName gets the device node from a uevent, falling back to DEVPATH.
func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
