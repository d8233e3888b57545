package config

const (
	DeviceUSB = "usb"
	DeviceRPi = "rpi"

	StoreS3     = "s3"
	StoreSQLite = "sqlite"

	BusMQTT  = "mqtt"
	BusNATS  = "nats"
	BusRedis = "redis"
)

const (
	defaultConfigPath             = "~/.config/pulsecam/config.toml"
	defaultLogDir                 = "~/.local/share/pulsecam/logs"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultCaptureIntervalSeconds = 10
	defaultCleanupIntervalMinutes = 1
	defaultCacheSize              = 10
	defaultStorageDir             = "/tmp"
	defaultResolution             = "1024x768"
	defaultFilenamePrefix         = "image-"
	defaultFilenameExtension      = ".jpg"
	defaultFilenameTemplate       = "image{timestamp}.jpg"
	defaultFFmpegBinary           = "ffmpeg"
	defaultStillBinary            = "rpicam-still"
	defaultWarmupSeconds          = 2
	defaultStoreEndpoint          = "localhost:9000"
	defaultStoreRegion            = "us-east-1"
	defaultStoreBucket            = "images"
	defaultSQLitePath             = "~/.local/share/pulsecam/objects.db"
	defaultBusHost                = "localhost"
	defaultBusTopic               = "image/latest"
	defaultBusConnectTimeout      = 10
	defaultMQTTPort               = 1883
	defaultNATSPort               = 4222
	defaultRedisPort              = 6379
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Capture: Capture{
			IntervalSeconds: defaultCaptureIntervalSeconds,
		},
		Retention: Retention{
			CleanupIntervalMinutes: defaultCleanupIntervalMinutes,
			LocalCacheSize:         defaultCacheSize,
			RemoteCacheSize:        defaultCacheSize,
		},
		Device: Device{
			Kind:              DeviceUSB,
			StorageDir:        defaultStorageDir,
			Resolution:        defaultResolution,
			FilenamePrefix:    defaultFilenamePrefix,
			FilenameExtension: defaultFilenameExtension,
			FilenameTemplate:  defaultFilenameTemplate,
			FFmpegBinary:      defaultFFmpegBinary,
			StillBinary:       defaultStillBinary,
			WarmupSeconds:     defaultWarmupSeconds,
		},
		Store: Store{
			Kind:            StoreS3,
			Endpoint:        defaultStoreEndpoint,
			Region:          defaultStoreRegion,
			Bucket:          defaultStoreBucket,
			SQLitePath:      defaultSQLitePath,
			ValidateOnStart: true,
		},
		Bus: Bus{
			Kind:                  BusMQTT,
			Host:                  defaultBusHost,
			Topic:                 defaultBusTopic,
			ConnectTimeoutSeconds: defaultBusConnectTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultBusPort(kind string) int {
	switch kind {
	case BusNATS:
		return defaultNATSPort
	case BusRedis:
		return defaultRedisPort
	default:
		return defaultMQTTPort
	}
}
