package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	if err := c.normalizeDevice(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeBus()
	c.normalizeLogging()
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.DeviceID = strings.TrimSpace(c.Capture.DeviceID)
	if c.Capture.DeviceID == "" {
		if value, ok := os.LookupEnv("PULSECAM_DEVICE_ID"); ok {
			c.Capture.DeviceID = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeDevice() error {
	c.Device.Kind = strings.ToLower(strings.TrimSpace(c.Device.Kind))
	if c.Device.Kind == "" {
		c.Device.Kind = DeviceUSB
	}
	var err error
	if strings.TrimSpace(c.Device.StorageDir) == "" {
		c.Device.StorageDir = defaultStorageDir
	}
	if c.Device.StorageDir, err = expandPath(c.Device.StorageDir); err != nil {
		return fmt.Errorf("device.storage_dir: %w", err)
	}
	c.Device.Resolution = strings.TrimSpace(c.Device.Resolution)
	if c.Device.Resolution == "" {
		c.Device.Resolution = defaultResolution
	}
	c.Device.FilenameExtension = strings.ToLower(strings.TrimSpace(c.Device.FilenameExtension))
	if c.Device.FilenameExtension == "" {
		c.Device.FilenameExtension = defaultFilenameExtension
	}
	if c.Device.FilenameExtension[0] != '.' {
		c.Device.FilenameExtension = "." + c.Device.FilenameExtension
	}
	c.Device.FilenameTemplate = strings.TrimSpace(c.Device.FilenameTemplate)
	if c.Device.FilenameTemplate == "" {
		c.Device.FilenameTemplate = defaultFilenameTemplate
	}
	c.Device.DevicePath = strings.TrimSpace(c.Device.DevicePath)
	c.Device.FFmpegBinary = strings.TrimSpace(c.Device.FFmpegBinary)
	if c.Device.FFmpegBinary == "" {
		c.Device.FFmpegBinary = defaultFFmpegBinary
	}
	c.Device.StillBinary = strings.TrimSpace(c.Device.StillBinary)
	if c.Device.StillBinary == "" {
		c.Device.StillBinary = defaultStillBinary
	}
	if c.Device.WarmupSeconds < 0 {
		c.Device.WarmupSeconds = 0
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Kind = strings.ToLower(strings.TrimSpace(c.Store.Kind))
	if c.Store.Kind == "" {
		c.Store.Kind = StoreS3
	}
	c.Store.Endpoint = strings.TrimSpace(c.Store.Endpoint)
	c.Store.Region = strings.TrimSpace(c.Store.Region)
	if c.Store.Region == "" {
		c.Store.Region = defaultStoreRegion
	}
	c.Store.Bucket = strings.TrimSpace(c.Store.Bucket)
	c.Store.AccessKey = strings.TrimSpace(c.Store.AccessKey)
	if c.Store.AccessKey == "" {
		if value, ok := os.LookupEnv("PULSECAM_STORE_ACCESS_KEY"); ok {
			c.Store.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Store.SecretKey = strings.TrimSpace(c.Store.SecretKey)
	if c.Store.SecretKey == "" {
		if value, ok := os.LookupEnv("PULSECAM_STORE_SECRET_KEY"); ok {
			c.Store.SecretKey = strings.TrimSpace(value)
		}
	}
	var err error
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = defaultSQLitePath
	}
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeBus() {
	c.Bus.Kind = strings.ToLower(strings.TrimSpace(c.Bus.Kind))
	if c.Bus.Kind == "" {
		c.Bus.Kind = BusMQTT
	}
	c.Bus.Host = strings.TrimSpace(c.Bus.Host)
	if c.Bus.Port == 0 {
		c.Bus.Port = defaultBusPort(c.Bus.Kind)
	}
	c.Bus.Username = strings.TrimSpace(c.Bus.Username)
	if c.Bus.Password == "" {
		if value, ok := os.LookupEnv("PULSECAM_BUS_PASSWORD"); ok {
			c.Bus.Password = value
		}
	}
	c.Bus.Topic = strings.TrimSpace(c.Bus.Topic)
	if c.Bus.Topic == "" {
		c.Bus.Topic = defaultBusTopic
	}
	c.Bus.ClientID = strings.TrimSpace(c.Bus.ClientID)
	if c.Bus.ConnectTimeoutSeconds <= 0 {
		c.Bus.ConnectTimeoutSeconds = defaultBusConnectTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
