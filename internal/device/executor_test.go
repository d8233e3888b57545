package device_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pulsecam/internal/device"
)

func TestCommandExecutorForwardsOutput(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "echoer")
	body := "#!/bin/sh\necho out-line\necho err-line 1>&2\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	var lines []string
	if err := device.CommandExecutor().Run(context.Background(), script, nil, func(line string) {
		lines = append(lines, line)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "out-line") || !strings.Contains(joined, "err-line") {
		t.Fatalf("expected both streams forwarded, got %q", joined)
	}
}

func TestCommandExecutorReportsExitStatus(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := device.CommandExecutor().Run(context.Background(), script, nil, nil); err == nil {
		t.Fatal("expected non-zero exit to be reported")
	}
}

func TestCheckStorageDir(t *testing.T) {
	dir := t.TempDir()
	if err := device.CheckStorageDir(dir); err != nil {
		t.Fatalf("CheckStorageDir on temp dir: %v", err)
	}
	missing := filepath.Join(dir, "missing")
	err := device.CheckStorageDir(missing)
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing directory error, got %v", err)
	}
}
