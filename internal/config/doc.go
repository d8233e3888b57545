// Package config loads, normalizes, and validates pulsecam configuration.
//
// It supplies defaults matching the reference capture cadence, expands user
// paths (including tilde shortcuts), reads TOML files, and honours
// environment fallbacks for credentials such as PULSECAM_BUS_PASSWORD. The
// Config type centralizes every knob the daemon and CLI need so the capture
// device, object store, and message bus are all described in one file.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical kinds, and clear validation errors.
package config
