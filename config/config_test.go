package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
sumo_host = "sumo.internal"
sumo_port = 9999
poll_interval_ms = 250
mcp_enabled = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SumoAddr() != "sumo.internal:9999" {
		t.Errorf("SumoAddr = %q", cfg.SumoAddr())
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if !cfg.MCPEnabled {
		t.Error("mcp_enabled not applied")
	}

	// Untouched keys keep their defaults.
	def := Default()
	if cfg.HTTPListenAddr != def.HTTPListenAddr {
		t.Errorf("HTTPListenAddr = %q, want default %q", cfg.HTTPListenAddr, def.HTTPListenAddr)
	}
	if cfg.RequestTimeout != def.RequestTimeout {
		t.Errorf("RequestTimeout = %v, want default %v", cfg.RequestTimeout, def.RequestTimeout)
	}
	if cfg.LogLevel != def.LogLevel {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, def.LogLevel)
	}
}

func TestLoadFractionalTimeout(t *testing.T) {
	path := writeConfig(t, `request_timeout_seconds = 0.5`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestTimeout != 500*time.Millisecond {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"port out of range", `sumo_port = 70000`},
		{"empty host", `sumo_host = ""`},
		{"zero interval", `poll_interval_ms = 0`},
		{"bad level", `log_level = "verbose"`},
		{"bad toml", `sumo_host = `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
}
