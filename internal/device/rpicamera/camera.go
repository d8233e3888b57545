// Package rpicamera captures stills from a Raspberry Pi camera module
// through the rpicam-still tool.
package rpicamera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"pulsecam/internal/artifact"
	"pulsecam/internal/clock"
	"pulsecam/internal/device"
	"pulsecam/internal/device/localcache"
	"pulsecam/internal/faults"
	"pulsecam/internal/logging"
)

const (
	component = "rpi-camera"

	// DefaultTemplate names files by capture time.
	DefaultTemplate = "image{timestamp}.jpg"

	// MaxWidth and MaxHeight bound the sensor resolution.
	MaxWidth  = 3280
	MaxHeight = 2464

	counterToken   = "{counter}"
	timestampToken = "{timestamp}"
	timestampFmt   = "2006-01-02-15-04-05"
)

// Options describes the camera and its staging directory.
type Options struct {
	StorageDir       string
	Width            int
	Height           int
	FilenameTemplate string
	CacheSize        int
	StillBinary      string
	Warmup           time.Duration
}

// Option configures the camera.
type Option func(*Camera)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec device.Executor) Option {
	return func(c *Camera) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithClock overrides the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Camera) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Camera) {
		c.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithLookPath overrides binary discovery.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Camera) {
		if fn != nil {
			c.lookPath = fn
		}
	}
}

// Camera is a device.Device backed by rpicam-still.
type Camera struct {
	opts     Options
	exec     device.Executor
	clock    clock.Clock
	logger   *slog.Logger
	lookPath func(string) (string, error)

	mu      sync.Mutex
	counter int
}

var _ device.Device = (*Camera)(nil)

// New validates opts, confirms the still binary is installed and waits for
// the sensor warm-up delay.
func New(ctx context.Context, opts Options, options ...Option) (*Camera, error) {
	c := &Camera{
		opts:     opts,
		exec:     device.CommandExecutor(),
		clock:    clock.System(),
		logger:   logging.NewComponentLogger(nil, component),
		lookPath: exec.LookPath,
	}
	for _, opt := range options {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, faults.Wrap(faults.ErrFatalStartup, component, "validate", "", err)
	}
	if c.opts.Warmup > 0 {
		if err := clock.Sleep(ctx, c.clock, c.opts.Warmup); err != nil {
			return nil, err
		}
	}
	c.logger.Info("camera ready",
		logging.String(logging.FieldEventType, "camera_ready"),
		logging.String(logging.FieldPath, c.opts.StorageDir),
		logging.String("template", c.opts.FilenameTemplate),
		logging.String("resolution", fmt.Sprintf("%dx%d", c.opts.Width, c.opts.Height)),
	)
	return c, nil
}

func (c *Camera) validate() error {
	if err := device.CheckStorageDir(c.opts.StorageDir); err != nil {
		return err
	}
	if c.opts.CacheSize < 2 {
		return fmt.Errorf("local cache size must be at least 2, got %d", c.opts.CacheSize)
	}
	if c.opts.Width <= 0 || c.opts.Height <= 0 || c.opts.Width > MaxWidth || c.opts.Height > MaxHeight {
		return fmt.Errorf("resolution %dx%d outside sensor limits %dx%d", c.opts.Width, c.opts.Height, MaxWidth, MaxHeight)
	}
	tmpl := strings.TrimSpace(c.opts.FilenameTemplate)
	if !strings.Contains(tmpl, counterToken) && !strings.Contains(tmpl, timestampToken) {
		logging.WarnWithContext(c.logger, "filename template has no {counter} or {timestamp}; using default", "camera_template_defaulted",
			logging.String("template", c.opts.FilenameTemplate),
			logging.String("default", DefaultTemplate),
			logging.String(logging.FieldErrorHint, "include {counter} or {timestamp} in device.filename_template"),
			logging.String(logging.FieldImpact, "captures would overwrite each other"),
		)
		tmpl = DefaultTemplate
	}
	c.opts.FilenameTemplate = tmpl
	if strings.TrimSpace(c.opts.StillBinary) == "" {
		return errors.New("still binary required")
	}
	if _, err := c.lookPath(c.opts.StillBinary); err != nil {
		return fmt.Errorf("%s not found; install the rpicam-apps package: %w", c.opts.StillBinary, err)
	}
	return nil
}

// Capture takes one still into the storage directory.
func (c *Camera) Capture(ctx context.Context) (*artifact.Artifact, error) {
	now := c.clock.Now()
	path := filepath.Join(c.opts.StorageDir, c.nextFilename(now))
	args := []string{
		"-n",
		"-o", path,
		"--width", strconv.Itoa(c.opts.Width),
		"--height", strconv.Itoa(c.opts.Height),
	}
	c.logger.Debug("capturing image", logging.String(logging.FieldPath, path))

	var last string
	if err := c.exec.Run(ctx, c.opts.StillBinary, args, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			last = trimmed
		}
	}); err != nil {
		return nil, faults.Wrap(faults.ErrTransientDevice, component, "capture", last, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, faults.Wrap(faults.ErrTransientDevice, component, "capture", "no image written", err)
	}
	return artifact.New(now, path), nil
}

func (c *Camera) nextFilename(now time.Time) string {
	c.mu.Lock()
	counter := c.counter
	c.counter++
	c.mu.Unlock()

	name := strings.ReplaceAll(c.opts.FilenameTemplate, counterToken, strconv.Itoa(counter))
	return strings.ReplaceAll(name, timestampToken, now.Format(timestampFmt))
}

// PruneLocalCache deletes the oldest images sharing the template's extension.
func (c *Camera) PruneLocalCache(ctx context.Context) {
	localcache.Prune(ctx, localcache.Options{
		Dir:       c.opts.StorageDir,
		Extension: c.extension(),
		Keep:      c.opts.CacheSize,
	}, c.logger)
}

func (c *Camera) extension() string {
	tmpl := c.opts.FilenameTemplate
	idx := strings.LastIndex(tmpl, ".")
	if idx < 0 || idx == len(tmpl)-1 {
		return ""
	}
	return tmpl[idx:]
}

// Close is a no-op; rpicam-still holds the sensor only while it runs.
func (c *Camera) Close() error { return nil }
