// Package providers turns a validated configuration into the concrete
// device, object-store and message-bus implementations the daemon drives.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pulsecam/internal/bus"
	"pulsecam/internal/bus/mqttbus"
	"pulsecam/internal/bus/natsbus"
	"pulsecam/internal/bus/redisbus"
	"pulsecam/internal/clock"
	"pulsecam/internal/config"
	"pulsecam/internal/daemon"
	"pulsecam/internal/device"
	"pulsecam/internal/device/hotplug"
	"pulsecam/internal/device/rpicamera"
	"pulsecam/internal/device/usbcamera"
	"pulsecam/internal/faults"
	"pulsecam/internal/objectstore"
	"pulsecam/internal/objectstore/s3store"
	"pulsecam/internal/objectstore/sqlitestore"
)

// Set bundles the capabilities built for one daemon run.
type Set struct {
	Device   device.Device
	Store    objectstore.Store
	Bus      bus.Bus
	Watchers []daemon.Watcher

	closers []func() error
}

// Dependencies converts the set into daemon dependencies.
func (s *Set) Dependencies() daemon.Dependencies {
	return daemon.Dependencies{
		Device:   s.Device,
		Store:    s.Store,
		Bus:      s.Bus,
		Watchers: s.Watchers,
	}
}

// Close releases store handles. The daemon owns device and bus shutdown.
func (s *Set) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Build constructs every capability. The bus is configured but not
// connected; the daemon performs the handshake.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*Set, error) {
	if cfg == nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "providers", "build", "config is required", nil)
	}
	set := &Set{}

	b, err := NewBus(cfg, logger, clk)
	if err != nil {
		return nil, err
	}
	set.Bus = b

	store, closeStore, err := NewStore(ctx, cfg, logger, clk)
	if err != nil {
		return nil, err
	}
	set.Store = store
	if closeStore != nil {
		set.closers = append(set.closers, closeStore)
	}

	var monitor *hotplug.Monitor
	if cfg.Device.Hotplug && cfg.Device.Kind == config.DeviceUSB {
		monitor = hotplug.New(cfg.DeviceNode(), logger)
	}
	dev, err := NewDevice(ctx, cfg, logger, clk, monitor)
	if err != nil {
		_ = set.Close()
		return nil, err
	}
	set.Device = dev
	if monitor != nil {
		set.Watchers = append(set.Watchers, monitor)
	}
	return set, nil
}

// NewDevice builds the configured camera. presence may be nil.
func NewDevice(ctx context.Context, cfg *config.Config, logger *slog.Logger, clk clock.Clock, presence *hotplug.Monitor) (device.Device, error) {
	width, height, err := config.ParseResolution(cfg.Device.Resolution)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "providers", "device", "", err)
	}
	switch cfg.Device.Kind {
	case config.DeviceUSB:
		opts := []usbcamera.Option{usbcamera.WithLogger(logger), usbcamera.WithClock(clk)}
		if presence != nil {
			opts = append(opts, usbcamera.WithPresence(presence))
		}
		return usbcamera.New(ctx, usbcamera.Options{
			Node:              cfg.DeviceNode(),
			StorageDir:        cfg.Device.StorageDir,
			Width:             width,
			Height:            height,
			FilenamePrefix:    cfg.Device.FilenamePrefix,
			FilenameExtension: cfg.Device.FilenameExtension,
			CacheSize:         cfg.Retention.LocalCacheSize,
			FFmpegBinary:      cfg.Device.FFmpegBinary,
			Warmup:            cfg.WarmupDelay(),
		}, opts...)
	case config.DeviceRPi:
		return rpicamera.New(ctx, rpicamera.Options{
			StorageDir:       cfg.Device.StorageDir,
			Width:            width,
			Height:           height,
			FilenameTemplate: cfg.Device.FilenameTemplate,
			CacheSize:        cfg.Retention.LocalCacheSize,
			StillBinary:      cfg.Device.StillBinary,
			Warmup:           cfg.WarmupDelay(),
		}, rpicamera.WithLogger(logger), rpicamera.WithClock(clk))
	default:
		return nil, faults.Wrap(faults.ErrConfiguration, "providers", "device",
			fmt.Sprintf("unsupported device kind %q", cfg.Device.Kind), nil)
	}
}

// NewStore builds the configured object store and an optional close func.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, clk clock.Clock) (objectstore.Store, func() error, error) {
	switch cfg.Store.Kind {
	case config.StoreS3:
		store, err := s3store.New(ctx, s3store.Options{
			Endpoint:     cfg.Store.Endpoint,
			Region:       cfg.Store.Region,
			AccessKey:    cfg.Store.AccessKey,
			SecretKey:    cfg.Store.SecretKey,
			HTTPSEnabled: cfg.Store.HTTPSEnabled,
			Bucket:       cfg.Store.Bucket,
		}, logger)
		if err != nil {
			return nil, nil, faults.Wrap(faults.ErrFatalStartup, "providers", "object store", "", err)
		}
		return store, nil, nil
	case config.StoreSQLite:
		store, err := sqlitestore.Open(ctx, cfg.Store.SQLitePath, cfg.Store.Bucket, clk)
		if err != nil {
			return nil, nil, faults.Wrap(faults.ErrFatalStartup, "providers", "object store", "", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "providers", "object store",
			fmt.Sprintf("unsupported store kind %q", cfg.Store.Kind), nil)
	}
}

// NewBus builds the configured message-bus client.
func NewBus(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (bus.Bus, error) {
	switch cfg.Bus.Kind {
	case config.BusMQTT:
		return mqttbus.New(mqttbus.Options{
			Host:           cfg.Bus.Host,
			Port:           cfg.Bus.Port,
			Username:       cfg.Bus.Username,
			Password:       cfg.Bus.Password,
			ClientID:       cfg.Bus.ClientID,
			ConnectTimeout: cfg.ConnectTimeout(),
		}, logger, clk), nil
	case config.BusNATS:
		return natsbus.New(natsbus.Options{
			Host:           cfg.Bus.Host,
			Port:           cfg.Bus.Port,
			Username:       cfg.Bus.Username,
			Password:       cfg.Bus.Password,
			ClientID:       cfg.Bus.ClientID,
			ConnectTimeout: cfg.ConnectTimeout(),
		}, logger), nil
	case config.BusRedis:
		return redisbus.New(redisbus.Options{
			Host:           cfg.Bus.Host,
			Port:           cfg.Bus.Port,
			Username:       cfg.Bus.Username,
			Password:       cfg.Bus.Password,
			ClientID:       cfg.Bus.ClientID,
			ConnectTimeout: cfg.ConnectTimeout(),
		}, logger), nil
	default:
		return nil, faults.Wrap(faults.ErrConfiguration, "providers", "bus",
			fmt.Sprintf("unsupported bus kind %q", cfg.Bus.Kind), nil)
	}
}
