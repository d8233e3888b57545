package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"pulsecam/internal/config"
	"pulsecam/internal/faults"
)

func setCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PULSECAM_DEVICE_ID", "cam-env")
	t.Setenv("PULSECAM_STORE_ACCESS_KEY", "access")
	t.Setenv("PULSECAM_STORE_SECRET_KEY", "secret")
}

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	setCredentialEnv(t)
	t.Setenv("PULSECAM_BUS_PASSWORD", "hunter2")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogDir := filepath.Join(tempHome, ".local", "share", "pulsecam", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if cfg.Capture.DeviceID != "cam-env" {
		t.Fatalf("expected device id from env, got %q", cfg.Capture.DeviceID)
	}
	if cfg.Store.AccessKey != "access" || cfg.Store.SecretKey != "secret" {
		t.Fatalf("expected store credentials from env, got %q/%q", cfg.Store.AccessKey, cfg.Store.SecretKey)
	}
	if cfg.Bus.Password != "hunter2" {
		t.Fatalf("expected bus password from env, got %q", cfg.Bus.Password)
	}
	if cfg.Bus.Port != 1883 {
		t.Fatalf("expected default mqtt port, got %d", cfg.Bus.Port)
	}
	if cfg.Bus.Topic != "image/latest" {
		t.Fatalf("unexpected default topic %q", cfg.Bus.Topic)
	}
	if cfg.CaptureInterval() != 10*time.Second {
		t.Fatalf("unexpected capture interval %s", cfg.CaptureInterval())
	}
	if cfg.CleanupInterval() != time.Minute {
		t.Fatalf("unexpected cleanup interval %s", cfg.CleanupInterval())
	}
	if cfg.ConnectTimeout() != 10*time.Second {
		t.Fatalf("unexpected connect timeout %s", cfg.ConnectTimeout())
	}
	if cfg.Retention.LocalCacheSize != 10 || cfg.Retention.RemoteCacheSize != 10 {
		t.Fatalf("unexpected cache sizes %d/%d", cfg.Retention.LocalCacheSize, cfg.Retention.RemoteCacheSize)
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	setCredentialEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths":   map[string]any{"log_dir": "~/logs"},
		"capture": map[string]any{"interval_seconds": 30, "device_id": "porch"},
		"bus":     map[string]any{"kind": "NATS", "host": "broker", "topic": "site/porch"},
		"store":   map[string]any{"kind": "sqlite", "bucket": "local", "sqlite_path": "~/objects.db"},
		"device":  map[string]any{"filename_extension": "PNG"},
		"logging": map[string]any{"format": "JSON", "level": "DEBUG"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected %q to be loaded, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Capture.DeviceID != "porch" {
		t.Fatalf("file value should win over env, got %q", cfg.Capture.DeviceID)
	}
	if cfg.Bus.Kind != config.BusNATS || cfg.Bus.Port != 4222 {
		t.Fatalf("expected nats with default port, got %s:%d", cfg.Bus.Kind, cfg.Bus.Port)
	}
	if cfg.Store.SQLitePath != filepath.Join(tempHome, "objects.db") {
		t.Fatalf("unexpected sqlite path %q", cfg.Store.SQLitePath)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "logs") {
		t.Fatalf("unexpected log dir %q", cfg.Paths.LogDir)
	}
	if cfg.Device.FilenameExtension != ".png" {
		t.Fatalf("expected normalized extension, got %q", cfg.Device.FilenameExtension)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected lowercased logging settings, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[capture\ninterval_seconds = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func validConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Capture.DeviceID = "cam-1"
	cfg.Store.AccessKey = "access"
	cfg.Store.SecretKey = "secret"
	cfg.Paths.LogDir = t.TempDir()
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return cfg
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{"zero capture interval", func(c *config.Config) { c.Capture.IntervalSeconds = 0 }, "capture.interval_seconds"},
		{"negative cleanup interval", func(c *config.Config) { c.Retention.CleanupIntervalMinutes = -1 }, "retention.cleanup_interval_minutes"},
		{"local cache of one", func(c *config.Config) { c.Retention.LocalCacheSize = 1 }, "retention.local_cache_size"},
		{"remote cache of one", func(c *config.Config) { c.Retention.RemoteCacheSize = 1 }, "retention.remote_cache_size"},
		{"missing device id", func(c *config.Config) { c.Capture.DeviceID = "" }, "capture.device_id"},
		{"unknown device", func(c *config.Config) { c.Device.Kind = "webcam" }, "device.kind"},
		{"bad resolution", func(c *config.Config) { c.Device.Resolution = "big" }, "device.resolution"},
		{"missing bucket", func(c *config.Config) { c.Store.Bucket = "" }, "store.bucket"},
		{"unknown store", func(c *config.Config) { c.Store.Kind = "gcs" }, "store.kind"},
		{"missing bus host", func(c *config.Config) { c.Bus.Host = "" }, "bus.host"},
		{"qos out of range", func(c *config.Config) { c.Bus.QoS = 3 }, "bus.qos"},
		{"unknown bus", func(c *config.Config) { c.Bus.Kind = "kafka" }, "bus.kind"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected %q in %q", tc.wantMsg, err.Error())
			}
		})
	}
}

func TestValidateAcceptsDefaultsWithCredentials(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := config.ParseResolution(" 3280X2464 ")
	if err != nil {
		t.Fatalf("ParseResolution: %v", err)
	}
	if w != 3280 || h != 2464 {
		t.Fatalf("unexpected resolution %dx%d", w, h)
	}
	for _, bad := range []string{"", "1024", "0x768", "axb", "1x2x3"} {
		if _, _, err := config.ParseResolution(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDeviceNodeAndDerivedPaths(t *testing.T) {
	cfg := validConfig(t)
	cfg.Device.DeviceIndex = 2
	if got := cfg.DeviceNode(); got != "/dev/video2" {
		t.Fatalf("unexpected device node %q", got)
	}
	cfg.Device.DevicePath = "/dev/v4l/by-id/cam"
	if got := cfg.DeviceNode(); got != "/dev/v4l/by-id/cam" {
		t.Fatalf("expected explicit device path, got %q", got)
	}
	if filepath.Dir(cfg.LockPath()) != cfg.Paths.LogDir || filepath.Dir(cfg.PIDPath()) != cfg.Paths.LogDir {
		t.Fatalf("lock and pid files should live in log dir: %q %q", cfg.LockPath(), cfg.PIDPath())
	}
}

func TestCreateSampleRoundTripsThroughLoad(t *testing.T) {
	setCredentialEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Capture.DeviceID != "cam-1" {
		t.Fatalf("unexpected sample device id %q", cfg.Capture.DeviceID)
	}
}

func TestEnsureDirectoriesCreatesLogDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "a", "b")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.LogDir); err != nil || !info.IsDir() {
		t.Fatalf("expected log dir to exist: %v", err)
	}
}
