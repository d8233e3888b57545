package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	if c.Capture.IntervalSeconds <= 0 {
		return fmt.Errorf("capture.interval_seconds must be greater than 0, got %d", c.Capture.IntervalSeconds)
	}
	if c.Capture.DeviceID == "" {
		return errors.New("capture.device_id is required. Set PULSECAM_DEVICE_ID or edit the config (create with 'pulsecam config init')")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("retention.cleanup_interval_minutes must be greater than 0, got %d", c.Retention.CleanupIntervalMinutes)
	}
	if c.Retention.LocalCacheSize < 2 {
		return fmt.Errorf("retention.local_cache_size must be at least 2, got %d", c.Retention.LocalCacheSize)
	}
	if c.Retention.RemoteCacheSize < 2 {
		return fmt.Errorf("retention.remote_cache_size must be at least 2, got %d", c.Retention.RemoteCacheSize)
	}
	return nil
}

func (c *Config) validateDevice() error {
	switch c.Device.Kind {
	case DeviceUSB, DeviceRPi:
	default:
		return fmt.Errorf("device.kind %q is not supported (use %q or %q)", c.Device.Kind, DeviceUSB, DeviceRPi)
	}
	if _, _, err := ParseResolution(c.Device.Resolution); err != nil {
		return fmt.Errorf("device.resolution: %w", err)
	}
	if c.Device.DeviceIndex < 0 {
		return fmt.Errorf("device.device_index must not be negative, got %d", c.Device.DeviceIndex)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Kind {
	case StoreS3:
		if c.Store.Endpoint == "" {
			return errors.New("store.endpoint must be set when store.kind is s3")
		}
		if c.Store.Bucket == "" {
			return errors.New("store.bucket must be set when store.kind is s3")
		}
		if c.Store.AccessKey == "" || c.Store.SecretKey == "" {
			return errors.New("store.access_key and store.secret_key must be set when store.kind is s3")
		}
	case StoreSQLite:
		if c.Store.Bucket == "" {
			return errors.New("store.bucket must be set")
		}
	default:
		return fmt.Errorf("store.kind %q is not supported (use %q or %q)", c.Store.Kind, StoreS3, StoreSQLite)
	}
	return nil
}

func (c *Config) validateBus() error {
	switch c.Bus.Kind {
	case BusMQTT, BusNATS, BusRedis:
	default:
		return fmt.Errorf("bus.kind %q is not supported (use %q, %q, or %q)", c.Bus.Kind, BusMQTT, BusNATS, BusRedis)
	}
	if c.Bus.Host == "" {
		return errors.New("bus.host must be set")
	}
	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		return fmt.Errorf("bus.port must be between 1 and 65535, got %d", c.Bus.Port)
	}
	if strings.TrimSpace(c.Bus.Topic) == "" {
		return errors.New("bus.topic must be set")
	}
	if c.Bus.QoS < 0 || c.Bus.QoS > 2 {
		return fmt.Errorf("bus.qos must be 0, 1, or 2, got %d", c.Bus.QoS)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console, json, or auto)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
