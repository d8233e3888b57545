package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// jpegSOI is the start-of-image marker every captured frame begins with.
var jpegSOI = []byte{0xff, 0xd8, 0xff}

// WriteFile writes a frame-shaped file of size bytes: a JPEG start marker
// followed by filler. A size <= 0 writes the marker alone.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := jpegSOI
	if size > int64(len(jpegSOI)) {
		data = append(bytes.Clone(jpegSOI), bytes.Repeat([]byte{0x42}, int(size)-len(jpegSOI))...)
	} else if size > 0 {
		data = jpegSOI[:size]
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// StubExecutables installs shell scripts named names into a temp bin dir and
// makes that dir the only PATH entry for the test. Each stub runs script,
// or exits 0 when script is empty.
func StubExecutables(t testing.TB, script string, names ...string) string {
	t.Helper()

	bin := t.TempDir()
	body := "#!/bin/sh\n" + strings.TrimSpace(script) + "\nexit 0\n"
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(bin, name), []byte(body), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", bin)
	return bin
}
