package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"pulsecam/internal/faults"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains daemon-owned directories.
type Paths struct {
	LogDir string `toml:"log_dir"`
}

// Capture contains the capture cadence and the device tag stamped on every
// published payload.
type Capture struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	DeviceID        string `toml:"device_id"`
}

// Retention contains the eviction cadence and the number of artifacts kept in
// each store.
type Retention struct {
	CleanupIntervalMinutes int `toml:"cleanup_interval_minutes"`
	LocalCacheSize         int `toml:"local_cache_size"`
	RemoteCacheSize        int `toml:"remote_cache_size"`
}

// Device describes the capture device.
type Device struct {
	Kind              string `toml:"kind"`
	StorageDir        string `toml:"storage_dir"`
	Resolution        string `toml:"resolution"`
	FilenamePrefix    string `toml:"filename_prefix"`
	FilenameExtension string `toml:"filename_extension"`
	FilenameTemplate  string `toml:"filename_template"`
	DeviceIndex       int    `toml:"device_index"`
	DevicePath        string `toml:"device_path"`
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	StillBinary       string `toml:"still_binary"`
	WarmupSeconds     int    `toml:"warmup_seconds"`
	Hotplug           bool   `toml:"hotplug"`
}

// Store describes the remote object store.
type Store struct {
	Kind            string `toml:"kind"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	HTTPSEnabled    bool   `toml:"https_enabled"`
	Bucket          string `toml:"bucket"`
	SQLitePath      string `toml:"sqlite_path"`
	ValidateOnStart bool   `toml:"validate_on_start"`
}

// Bus describes the message bus connection.
type Bus struct {
	Kind                  string `toml:"kind"`
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	Username              string `toml:"username"`
	Password              string `toml:"password"`
	Topic                 string `toml:"topic"`
	QoS                   int    `toml:"qos"`
	ClientID              string `toml:"client_id"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains the Prometheus listener address. An empty Listen disables
// the endpoint.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config encapsulates all configuration values for pulsecam.
//
// Configuration sections by subsystem:
//   - Paths: log and lock directory
//   - Capture: capture cadence and device tag
//   - Retention: eviction cadence and cache sizes
//   - Device: camera kind and capture settings
//   - Store: object store endpoint, credentials, and bucket
//   - Bus: message bus endpoint, credentials, and topic
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus listener
type Config struct {
	Paths     Paths     `toml:"paths"`
	Capture   Capture   `toml:"capture"`
	Retention Retention `toml:"retention"`
	Device    Device    `toml:"device"`
	Store     Store     `toml:"store"`
	Bus       Bus       `toml:"bus"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Validation failures carry faults.ErrConfiguration.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("%w: parse config: %w", faults.ErrConfiguration, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, fmt.Errorf("%w: %w", faults.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, fmt.Errorf("%w: %w", faults.ErrConfiguration, err)
	}

	return &cfg, resolvedPath, exists, nil
}

// Normalize applies path expansion and environment fallbacks. Callers that
// build a Config in code (tests, flag overrides) run it before Validate.
func (c *Config) Normalize() error {
	return c.normalize()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pulsecam.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation. The
// device storage directory is not created here; the camera validates it
// exists and is usable.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	if c.Store.Kind == StoreSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create sqlite directory %q: %w", filepath.Dir(c.Store.SQLitePath), err)
		}
	}
	return nil
}

// CaptureInterval returns the delay between capture cycles.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.Capture.IntervalSeconds) * time.Second
}

// CleanupInterval returns the delay between eviction cycles.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Retention.CleanupIntervalMinutes) * time.Minute
}

// ConnectTimeout returns the bus handshake window.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Bus.ConnectTimeoutSeconds) * time.Second
}

// WarmupDelay returns how long the camera settles after it is opened.
func (c *Config) WarmupDelay() time.Duration {
	return time.Duration(c.Device.WarmupSeconds) * time.Second
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "pulsecam.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "pulsecam.pid")
}

// DeviceNode returns the video device node the usb camera reads from.
func (c *Config) DeviceNode() string {
	if strings.TrimSpace(c.Device.DevicePath) != "" {
		return c.Device.DevicePath
	}
	return "/dev/video" + strconv.Itoa(c.Device.DeviceIndex)
}

// ParseResolution splits a WIDTHxHEIGHT string.
func ParseResolution(value string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(value)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("resolution %q must look like WIDTHxHEIGHT", value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: invalid width: %w", value, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: invalid height: %w", value, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("resolution %q must be positive", value)
	}
	return width, height, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
