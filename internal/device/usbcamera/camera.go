// Package usbcamera captures still frames from a V4L2 camera by running
// ffmpeg once per capture.
package usbcamera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulsecam/internal/artifact"
	"pulsecam/internal/clock"
	"pulsecam/internal/device"
	"pulsecam/internal/device/localcache"
	"pulsecam/internal/faults"
	"pulsecam/internal/logging"
)

const component = "usb-camera"

var supportedExtensions = []string{".jpg", ".png"}

// Options describes the camera and its staging directory.
type Options struct {
	Node              string
	StorageDir        string
	Width             int
	Height            int
	FilenamePrefix    string
	FilenameExtension string
	CacheSize         int
	FFmpegBinary      string
	Warmup            time.Duration
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

// WithClock overrides the time source used for timestamps and warm-up.
func WithClock(clk clock.Clock) Option {
	return func(c *Camera) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithPresence makes Capture fail fast while the camera is unplugged.
func WithPresence(p device.Presence) Option {
	return func(c *Camera) {
		c.presence = p
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Camera) {
		c.logger = logging.NewComponentLogger(logger, component)
	}
}

// Camera is a device.Device backed by ffmpeg's v4l2 input.
type Camera struct {
	opts     Options
	exec     device.Executor
	clock    clock.Clock
	presence device.Presence
	logger   *slog.Logger
}

var _ device.Device = (*Camera)(nil)

// New validates opts and waits for the warm-up delay.
func New(ctx context.Context, opts Options, options ...Option) (*Camera, error) {
	c := &Camera{
		opts:   opts,
		exec:   device.CommandExecutor(),
		clock:  clock.System(),
		logger: logging.NewComponentLogger(nil, component),
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
		logging.String("device", c.opts.Node),
		logging.String(logging.FieldPath, c.opts.StorageDir),
		logging.String("resolution", c.resolution()),
	)
	return c, nil
}

func (c *Camera) validate() error {
	if err := device.CheckStorageDir(c.opts.StorageDir); err != nil {
		return err
	}
	ext := strings.ToLower(strings.TrimSpace(c.opts.FilenameExtension))
	supported := false
	for _, candidate := range supportedExtensions {
		if ext == candidate {
			supported = true
			break
		}
	}
	if !supported {
		logging.WarnWithContext(c.logger, "unsupported filename extension; using default", "camera_extension_defaulted",
			logging.String("extension", c.opts.FilenameExtension),
			logging.String("default", supportedExtensions[0]),
			logging.String(logging.FieldErrorHint, "set device.filename_extension to .jpg or .png"),
			logging.String(logging.FieldImpact, "images are written as "+supportedExtensions[0]),
		)
		ext = supportedExtensions[0]
	}
	c.opts.FilenameExtension = ext
	if c.opts.CacheSize < 2 {
		return fmt.Errorf("local cache size must be at least 2, got %d", c.opts.CacheSize)
	}
	if c.opts.Width <= 0 || c.opts.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.opts.Width, c.opts.Height)
	}
	if strings.TrimSpace(c.opts.FFmpegBinary) == "" {
		return errors.New("ffmpeg binary required")
	}
	if _, err := os.Stat(c.opts.Node); err != nil {
		return fmt.Errorf("could not open video device %s; check it exists and the daemon user may read it: %w", c.opts.Node, err)
	}
	return nil
}

// Capture grabs one frame into the storage directory.
func (c *Camera) Capture(ctx context.Context) (*artifact.Artifact, error) {
	if c.presence != nil && !c.presence.Present() {
		return nil, faults.Wrap(faults.ErrTransientDevice, component, "capture", "device detached: "+c.opts.Node, nil)
	}

	filename := c.opts.FilenamePrefix + uuid.NewString() + c.opts.FilenameExtension
	path := filepath.Join(c.opts.StorageDir, filename)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", c.resolution(),
		"-i", c.opts.Node,
		"-frames:v", "1",
		"-y", path,
	}
	c.logger.Debug("capturing image", logging.String(logging.FieldPath, path))

	var output []string
	if err := c.exec.Run(ctx, c.opts.FFmpegBinary, args, func(line string) {
		output = append(output, line)
	}); err != nil {
		return nil, faults.Wrap(faults.ErrTransientDevice, component, "capture", lastLine(output), err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, faults.Wrap(faults.ErrTransientDevice, component, "capture", "no frame written", err)
	}

	c.logger.Debug("captured image", logging.String(logging.FieldPath, path))
	return artifact.New(c.clock.Now(), path), nil
}

// PruneLocalCache deletes the oldest staged images beyond the cache size.
func (c *Camera) PruneLocalCache(ctx context.Context) {
	localcache.Prune(ctx, localcache.Options{
		Dir:       c.opts.StorageDir,
		Extension: c.opts.FilenameExtension,
		Keep:      c.opts.CacheSize,
	}, c.logger)
}

// Close releases nothing; ffmpeg holds the device only during a capture.
func (c *Camera) Close() error { return nil }

func (c *Camera) resolution() string {
	return strconv.Itoa(c.opts.Width) + "x" + strconv.Itoa(c.opts.Height)
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
