package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pulsecam/internal/config"
	"pulsecam/internal/daemonrun"
	"pulsecam/internal/faults"
)

type daemonOverrides struct {
	captureInterval int
	cacheSize       int
	cleanupInterval int
	topic           string
	deviceID        string
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var overrides daemonOverrides
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the pulsecam daemon in the foreground (internal)",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, cfg); err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: ctx.logDevelopment(cfg),
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&overrides.captureInterval, "capture-interval", "i", 0, "Seconds between captures")
	flags.IntVarP(&overrides.cacheSize, "cache-size", "k", 0, "Number of images kept in the bucket")
	flags.IntVarP(&overrides.cleanupInterval, "cleanup-interval", "u", 0, "Minutes between eviction passes")
	flags.StringVarP(&overrides.topic, "topic", "o", "", "Topic the capture notification is published on")
	flags.StringVarP(&overrides.deviceID, "device-id", "v", "", "Device id tag stamped on every payload")
	return cmd
}

// apply copies explicitly set flags onto cfg and re-validates it.
func (o daemonOverrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := false
	if flags.Changed("capture-interval") {
		cfg.Capture.IntervalSeconds = o.captureInterval
		changed = true
	}
	if flags.Changed("cache-size") {
		cfg.Retention.RemoteCacheSize = o.cacheSize
		changed = true
	}
	if flags.Changed("cleanup-interval") {
		cfg.Retention.CleanupIntervalMinutes = o.cleanupInterval
		changed = true
	}
	if flags.Changed("topic") {
		cfg.Bus.Topic = strings.TrimSpace(o.topic)
		changed = true
	}
	if flags.Changed("device-id") {
		cfg.Capture.DeviceID = strings.TrimSpace(o.deviceID)
		changed = true
	}
	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", faults.ErrConfiguration, err)
	}
	return nil
}
