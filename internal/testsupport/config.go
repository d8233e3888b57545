package testsupport

import (
	"path/filepath"
	"testing"

	"pulsecam/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The store defaults to a temp SQLite database so no network is needed.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Capture.DeviceID = "cam-test"
	cfgVal.Device.StorageDir = filepath.Join(base, "captures")
	cfgVal.Device.WarmupSeconds = 0
	cfgVal.Store.Kind = config.StoreSQLite
	cfgVal.Store.SQLitePath = filepath.Join(base, "objects.db")
	cfgVal.Bus.Port = 1883

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDeviceID overrides the device id tag.
func WithDeviceID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.DeviceID = id
	}
}

// WithCacheSizes overrides both retention limits.
func WithCacheSizes(local, remote int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retention.LocalCacheSize = local
		b.cfg.Retention.RemoteCacheSize = remote
	}
}

// WithBus points the bus section at kind/host/port.
func WithBus(kind, host string, port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Bus.Kind = kind
		b.cfg.Bus.Host = host
		b.cfg.Bus.Port = port
	}
}

// WithBaseDir hands the temp root backing the config to fn.
func WithBaseDir(fn func(dir string)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.baseDir)
	}
}
