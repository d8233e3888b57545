// Package device defines the capture capability consumed by the daemon and
// the shared plumbing its camera implementations use.
//
// A Device produces one artifact per Capture call and prunes its own local
// cache; it knows its filename convention, the daemon does not. Capture
// failures are returned as faults.ErrTransientDevice errors. PruneLocalCache
// logs and swallows its own failures.
package device

import (
	"context"

	"pulsecam/internal/artifact"
)

// Device is a capture source.
type Device interface {
	Capture(ctx context.Context) (*artifact.Artifact, error)
	PruneLocalCache(ctx context.Context)
	Close() error
}

// Presence reports whether the physical device is currently attached.
type Presence interface {
	Present() bool
}
