package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pulsecam/internal/config"
	"pulsecam/internal/faults"
	"pulsecam/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	var base string
	opts = append(opts, testsupport.WithBaseDir(func(dir string) { base = dir }))
	cfg := testsupport.NewConfig(t, opts...)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, filepath.Join(t.TempDir(), "missing", "config.toml"))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "pulsecam dev")
}

func TestStoreListMarksEvictions(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	uploads := t.TempDir()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		testsupport.Upload(t, store, uploads, name, 16)
	}

	out, _, err := runCLI(t, []string{"store", "ls", "--keep", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("store ls: %v", err)
	}
	requireContains(t, out, "3 objects in images, keeping 2, 1 to evict")

	var evicted []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "evict") && strings.Contains(line, ".jpg") {
			evicted = append(evicted, line)
		}
	}
	if len(evicted) != 1 || !strings.Contains(evicted[0], "a.jpg") {
		t.Fatalf("expected only a.jpg marked for eviction, got %q", evicted)
	}
}

func TestStoreListEmptyBucket(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"store", "ls", "--bucket", "archive"}, env.configPath)
	if err != nil {
		t.Fatalf("store ls: %v", err)
	}
	requireContains(t, out, "Bucket archive is empty")
}

func TestStoreGetDownloadsObject(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	id := testsupport.Upload(t, store, t.TempDir(), "frame.jpg", 32)

	dest := filepath.Join(env.baseDir, "out", "frame.jpg")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	out, _, err := runCLI(t, []string{"store", "get", id, dest}, env.configPath)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	requireContains(t, out, "Downloaded "+id)

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat download: %v", err)
	}
	if info.Size() != 32 {
		t.Fatalf("downloaded %d bytes, want 32", info.Size())
	}
}

func TestStoreGetMissingObject(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"store", "get", "images/nope.jpg", filepath.Join(env.baseDir, "nope.jpg")}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	requireContains(t, err.Error(), "download images/nope.jpg")
}

func TestDaemonRejectsInvalidOverride(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"daemon", "--cache-size", "1"}, env.configPath)
	if err == nil {
		t.Fatal("expected cache size 1 to be rejected")
	}
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, err.Error(), "remote_cache_size")
}

func TestDaemonOverridesApplyOnlyChangedFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cmd := newDaemonRunCommand(newCommandContext(new(string), new(string)))
	if err := cmd.Flags().Parse([]string{"-i", "30", "-o", "frames/new", "-v", "porch"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	overrides := daemonOverrides{captureInterval: 30, topic: "frames/new", deviceID: "porch"}
	before := cfg.Retention.RemoteCacheSize

	if err := overrides.apply(cmd, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Capture.IntervalSeconds != 30 {
		t.Fatalf("interval = %d, want 30", cfg.Capture.IntervalSeconds)
	}
	if cfg.Bus.Topic != "frames/new" || cfg.Capture.DeviceID != "porch" {
		t.Fatalf("unexpected topic %q device %q", cfg.Bus.Topic, cfg.Capture.DeviceID)
	}
	if cfg.Retention.RemoteCacheSize != before {
		t.Fatalf("cache size changed without flag: %d", cfg.Retention.RemoteCacheSize)
	}
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	level := "debug"
	ctx := newCommandContext(new(string), &level)
	cfg := testsupport.NewConfig(t)
	if got := ctx.resolvedLogLevel(cfg); got != "debug" {
		t.Fatalf("resolvedLogLevel = %q", got)
	}
	if !ctx.logDevelopment(cfg) {
		t.Fatal("debug level should enable development logging")
	}
}
