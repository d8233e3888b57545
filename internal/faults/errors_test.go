package faults_test

import (
	"errors"
	"strings"
	"testing"

	"pulsecam/internal/faults"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection reset")
	err := faults.Wrap(faults.ErrTransientStore, "capture-worker", "upload", "store rejected object", base)
	if !errors.Is(err, faults.ErrTransientStore) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause to be retained, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"capture-worker", "upload", "store rejected object", "connection reset"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := faults.Wrap(faults.ErrFatalStartup, "", "", "", nil)
	if !errors.Is(err, faults.ErrFatalStartup) {
		t.Fatalf("expected fatal marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "daemon failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindAndIsFatal(t *testing.T) {
	cases := []struct {
		err   error
		kind  string
		fatal bool
	}{
		{nil, "none", false},
		{faults.Wrap(faults.ErrTransientDevice, "camera", "capture", "", nil), "transient_device", false},
		{faults.Wrap(faults.ErrTransientStore, "s3", "list", "", nil), "transient_store", false},
		{faults.Wrap(faults.ErrTransientBus, "mqtt", "publish", "", nil), "transient_bus", false},
		{faults.Wrap(faults.ErrFatalStartup, "bus", "connect", "", nil), "fatal_startup", true},
		{faults.Wrap(faults.ErrConfiguration, "config", "validate", "", nil), "configuration", true},
		{errors.New("plain"), "unknown", false},
	}
	for _, tc := range cases {
		if got := faults.Kind(tc.err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
		if got := faults.IsFatal(tc.err); got != tc.fatal {
			t.Fatalf("IsFatal(%v) = %v, want %v", tc.err, got, tc.fatal)
		}
	}
}
