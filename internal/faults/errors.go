// Package faults defines the daemon's error taxonomy.
//
// Workers tag every per-cycle failure with one of the transient markers and
// log it at their boundary. Only ErrFatalStartup and ErrConfiguration ever
// escape the daemon and stop the process.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransientDevice = errors.New("transient device error")
	ErrTransientStore  = errors.New("transient store error")
	ErrTransientBus    = errors.New("transient bus error")
	ErrFatalStartup    = errors.New("fatal startup error")
	ErrConfiguration   = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransientDevice
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for err suitable for log fields and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrFatalStartup):
		return "fatal_startup"
	case errors.Is(err, ErrTransientDevice):
		return "transient_device"
	case errors.Is(err, ErrTransientStore):
		return "transient_store"
	case errors.Is(err, ErrTransientBus):
		return "transient_bus"
	default:
		return "unknown"
	}
}

// IsFatal reports whether err must halt startup.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalStartup) || errors.Is(err, ErrConfiguration)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "daemon failure"
	}
	return strings.Join(parts, ": ")
}
