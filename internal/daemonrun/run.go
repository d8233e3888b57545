// Package daemonrun owns the daemon process lifecycle: signal handling,
// log files, the pid file, the metrics listener, and provider assembly.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pulsecam/internal/clock"
	"pulsecam/internal/config"
	"pulsecam/internal/daemon"
	"pulsecam/internal/logging"
	"pulsecam/internal/metrics"
	"pulsecam/internal/providers"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the pulsecam daemon and blocks until SIGINT or SIGTERM. It
// returns nil after a signal and an error when startup is refused.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("pulsecam-%s.log", runID))
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update pulsecam.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "pulsecam-*.log", Exclude: []string{logPath}},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var recorder metrics.Metrics = metrics.Noop{}
	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewProm(registry)
		server, err := metrics.Listen(listen, registry, logger)
		if err != nil {
			return fmt.Errorf("start metrics listener: %w", err)
		}
		go server.Serve(signalCtx)
	}

	clk := clock.System()
	set, err := providers.Build(signalCtx, cfg, logger, clk)
	if err != nil {
		logging.ErrorWithContext(logger, "provider setup failed", "provider_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [device], [store] and [bus] sections"),
			logging.String(logging.FieldImpact, "daemon not started"),
		)
		return err
	}
	defer set.Close()

	deps := set.Dependencies()
	deps.Logger = logger
	deps.Metrics = recorder
	deps.Clock = clk
	d, err := daemon.New(daemon.OptionsFromConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Run(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check broker credentials, object-store reachability and the instance lock"),
			logging.String(logging.FieldImpact, "no images are captured"),
		)
		return err
	}
	logger.Info("pulsecam daemon shutting down", logging.String("status", d.Status().String()))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "pulsecam.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("device_kind", cfg.Device.Kind),
		logging.String("store_kind", cfg.Store.Kind),
		logging.String("bus_kind", cfg.Bus.Kind),
		logging.String(logging.FieldDeviceID, cfg.Capture.DeviceID),
	}
	switch cfg.Device.Kind {
	case config.DeviceUSB:
		attrs = append(attrs,
			logging.String("device_node", cfg.DeviceNode()),
			logging.Bool("ffmpeg_available", binaryAvailable(cfg.Device.FFmpegBinary)),
			logging.String("ffmpeg_binary", cfg.Device.FFmpegBinary),
		)
	case config.DeviceRPi:
		attrs = append(attrs,
			logging.Bool("still_available", binaryAvailable(cfg.Device.StillBinary)),
			logging.String("still_binary", cfg.Device.StillBinary),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
