package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demohub.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
port_range:
  min: 20000
  max: 20100
health_check_interval: 5s
apps:
  - name: firstswap
    display_name: First Swap
    binary: dist/bin/firstswap
  - name: legacy
    binary: ""
    disabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Listen)
	}
	if cfg.PortRange.Min != 20000 || cfg.PortRange.Max != 20100 {
		t.Errorf("unexpected port range %+v", cfg.PortRange)
	}
	if cfg.HealthCheckInterval != 5*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 5s", cfg.HealthCheckInterval)
	}
	// Unset fields keep their defaults.
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("HealthCheckTimeout = %v, want default 5s", cfg.HealthCheckTimeout)
	}
	if len(cfg.Apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(cfg.Apps))
	}
	enabled := cfg.EnabledApps()
	if len(enabled) != 1 || enabled[0].Name != "firstswap" {
		t.Errorf("unexpected enabled apps %+v", enabled)
	}
}

func TestLoadRejectsDuplicateAppNames(t *testing.T) {
	path := writeConfig(t, `
apps:
  - name: firstswap
    binary: a
  - name: firstswap
    binary: b
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate app names")
	}
}

func TestLoadRejectsEnabledAppWithoutBinary(t *testing.T) {
	path := writeConfig(t, `
apps:
  - name: firstswap
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for app without binary")
	}
}

func TestLoadRejectsBadPortRange(t *testing.T) {
	path := writeConfig(t, `
port_range:
  min: 2000
  max: 1000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for inverted port range")
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if len(cfg.Apps) == 0 {
		t.Fatal("default config must list the demo apps")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEMOHUB_LISTEN", ":9999")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("Listen = %q, want env override :9999", cfg.Listen)
	}
}
