// Package config loads the hub configuration from demohub.yaml with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the hub looks for its configuration by default.
const DefaultPath = "demohub.yaml"

// AppConfig describes one hosted demo application.
type AppConfig struct {
	// Name is the route key: the app is served under /app/<name>/.
	Name string `yaml:"name"`
	// DisplayName is used in logs and the hub index page.
	DisplayName string `yaml:"display_name"`
	// Binary is the path to the app executable.
	Binary string `yaml:"binary"`
	// Manifest optionally names a dependency manifest installed before the
	// app is started. Missing file means nothing to install.
	Manifest string `yaml:"manifest"`
	// Env holds extra environment variables for the app process.
	Env map[string]string `yaml:"env"`
	// Disabled excludes the app from the desired state without removing
	// its entry.
	Disabled bool `yaml:"disabled"`
}

// PortRange bounds the ports handed to app subprocesses.
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Config is the root hub configuration.
type Config struct {
	// Listen is the proxy listen address.
	Listen string `yaml:"listen" env:"DEMOHUB_LISTEN"`
	// AuditDBPath is the SQLite file for the request audit log.
	AuditDBPath string `yaml:"audit_db" env:"DEMOHUB_AUDIT_DB"`
	// Installer is the command prefix used to install a dependency
	// manifest, invoked as <installer...> <manifest>.
	Installer []string `yaml:"installer"`

	PortRange PortRange `yaml:"port_range"`

	HealthCheckInterval    time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout     time.Duration `yaml:"health_check_timeout"`
	RestartBackoffInitial  time.Duration `yaml:"restart_backoff_initial"`
	RestartBackoffMax      time.Duration `yaml:"restart_backoff_max"`
	GracefulShutdownPeriod time.Duration `yaml:"graceful_shutdown_period"`

	Apps []AppConfig `yaml:"apps"`
}

// Default returns the built-in configuration: the three demo apps under
// dist/bin, proxy on :80.
func Default() *Config {
	return &Config{
		Listen:                 ":80",
		AuditDBPath:            "demohub-audit.db",
		PortRange:              PortRange{Min: 10000, Max: 19999},
		HealthCheckInterval:    15 * time.Second,
		HealthCheckTimeout:     5 * time.Second,
		RestartBackoffInitial:  1 * time.Second,
		RestartBackoffMax:      30 * time.Second,
		GracefulShutdownPeriod: 10 * time.Second,
		Apps: []AppConfig{
			{Name: "firstswap", DisplayName: "Uniswap V3 First Swap", Binary: "dist/bin/firstswap"},
			{Name: "explorer", DisplayName: "Price/Tick/SqrtPrice Explorer", Binary: "dist/bin/explorer"},
			{Name: "poolmanager", DisplayName: "Manager Contract Simulator", Binary: "dist/bin/poolmanager"},
		},
	}
}

// UnmarshalYAML decodes the config, overwriting only the fields present
// in the document so defaults survive. Durations are written in the file
// as Go duration strings ("15s", "1m").
func (cfg *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Listen      string      `yaml:"listen"`
		AuditDBPath string      `yaml:"audit_db"`
		Installer   []string    `yaml:"installer"`
		PortRange   *PortRange  `yaml:"port_range"`
		Apps        []AppConfig `yaml:"apps"`

		HealthCheckInterval    string `yaml:"health_check_interval"`
		HealthCheckTimeout     string `yaml:"health_check_timeout"`
		RestartBackoffInitial  string `yaml:"restart_backoff_initial"`
		RestartBackoffMax      string `yaml:"restart_backoff_max"`
		GracefulShutdownPeriod string `yaml:"graceful_shutdown_period"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Listen != "" {
		cfg.Listen = raw.Listen
	}
	if raw.AuditDBPath != "" {
		cfg.AuditDBPath = raw.AuditDBPath
	}
	if len(raw.Installer) > 0 {
		cfg.Installer = raw.Installer
	}
	if raw.PortRange != nil {
		cfg.PortRange = *raw.PortRange
	}
	if raw.Apps != nil {
		cfg.Apps = raw.Apps
	}

	for _, d := range []struct {
		value string
		dst   *time.Duration
	}{
		{raw.HealthCheckInterval, &cfg.HealthCheckInterval},
		{raw.HealthCheckTimeout, &cfg.HealthCheckTimeout},
		{raw.RestartBackoffInitial, &cfg.RestartBackoffInitial},
		{raw.RestartBackoffMax, &cfg.RestartBackoffMax},
		{raw.GracefulShutdownPeriod, &cfg.GracefulShutdownPeriod},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.value, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Load reads and validates the configuration at path, applying defaults
// for unset fields and environment overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hub config: %w", err)
	}

	cfg := Default()
	cfg.Apps = nil // the file's app list replaces the default one
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hub config: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration file, falling back to the built-in
// defaults (still honoring environment overrides) if the file is absent.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return fmt.Errorf("failed to decode environment overrides: %w", err)
	}
	return nil
}

// Validate checks the route-table invariants: app names unique and
// non-empty, every enabled app has a binary, a sane port range.
func (cfg *Config) Validate() error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if cfg.PortRange.Min <= 0 || cfg.PortRange.Max <= 0 || cfg.PortRange.Min > cfg.PortRange.Max {
		return fmt.Errorf("invalid port range [%d-%d]", cfg.PortRange.Min, cfg.PortRange.Max)
	}

	seen := make(map[string]bool)
	for _, app := range cfg.Apps {
		if app.Name == "" {
			return fmt.Errorf("app with empty name")
		}
		if seen[app.Name] {
			return fmt.Errorf("duplicate app name %q", app.Name)
		}
		seen[app.Name] = true
		if !app.Disabled && app.Binary == "" {
			return fmt.Errorf("app %s: binary is required", app.Name)
		}
	}
	return nil
}

// EnabledApps returns the apps that should be running.
func (cfg *Config) EnabledApps() []AppConfig {
	out := make([]AppConfig, 0, len(cfg.Apps))
	for _, app := range cfg.Apps {
		if !app.Disabled {
			out = append(out, app)
		}
	}
	return out
}
