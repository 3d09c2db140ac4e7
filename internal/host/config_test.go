package host

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowd.toml")
	if err := os.WriteFile(path, []byte(`[listen]
address = ":9090"
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen.Address != ":9090" {
		t.Fatalf("expected overridden address, got %q", cfg.Listen.Address)
	}
	if cfg.Listen.DefaultRoute != "main" {
		t.Fatalf("expected default route to survive, got %q", cfg.Listen.DefaultRoute)
	}
	if cfg.Runtime.RequestTimeout.Duration != 5*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.Runtime.RequestTimeout.Duration)
	}
}

func TestLoadConfigParsesDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowd.toml")
	if err := os.WriteFile(path, []byte(`[listen]
address = ":9090"

[runtime]
request_timeout = "250ms"
max_arena_objects = 64
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Runtime.RequestTimeout.Duration != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", cfg.Runtime.RequestTimeout.Duration)
	}
	if cfg.Runtime.MaxArenaObjects != 64 {
		t.Fatalf("expected 64, got %d", cfg.Runtime.MaxArenaObjects)
	}
}

func TestLoadConfigRejectsMissingAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowd.toml")
	if err := os.WriteFile(path, []byte(`[runtime]
request_timeout = "1s"
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing listen.address")
	}
}
