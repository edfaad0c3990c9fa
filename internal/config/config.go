package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTickIntervalSec       = 1
	DefaultDeviceScanIntervalSec = 30
	DefaultHistorySize           = 20
	DefaultPortScanThreshold     = 15
	DefaultPortScanHighThreshold = 50
	DefaultTrafficMultiplier     = 3.0
	DefaultTrafficMinSamples     = 5
	DefaultMaxAlerts             = 200
)

// DefaultSystemProcesses are process-name substrings treated as system
// noise and excluded from notable connection views.
var DefaultSystemProcesses = []string{
	"systemd", "kernel", "kworker", "launchd", "svchost", "mdnsresponder",
}

// DefaultTrustedProcesses are process names whose outbound connections are
// not flagged by the suspicious-connection heuristic.
var DefaultTrustedProcesses = []string{
	"firefox", "chrome", "chromium", "safari", "curl", "wget", "ssh", "git",
	"apt", "dnf", "brew",
}

// Config holds all monitor settings. Every heuristic threshold is
// configuration, not a constant, so detection is independently testable.
type Config struct {
	Interface             string   `yaml:"interface"`
	TickIntervalSec       int      `yaml:"tick_interval_sec"`
	DeviceScanIntervalSec int      `yaml:"device_scan_interval_sec"`
	HistorySize           int      `yaml:"history_size"`
	MaxAlerts             int      `yaml:"max_alerts"`
	SystemProcesses       []string `yaml:"system_processes"`

	Detection DetectionConfig `yaml:"detection"`

	APIListen     string `yaml:"api_listen"`
	MetricsListen string `yaml:"metrics_listen"`
}

// DetectionConfig holds the heuristic thresholds.
type DetectionConfig struct {
	PortScanThreshold     int      `yaml:"port_scan_threshold"`
	PortScanHighThreshold int      `yaml:"port_scan_high_threshold"`
	TrafficMultiplier     float64  `yaml:"traffic_multiplier"`
	TrafficMinSamples     int      `yaml:"traffic_min_samples"`
	TrustedProcesses      []string `yaml:"trusted_processes"`
}

// Default returns a ready-to-use configuration.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.TickIntervalSec == 0 {
		cfg.TickIntervalSec = DefaultTickIntervalSec
	}
	if cfg.DeviceScanIntervalSec == 0 {
		cfg.DeviceScanIntervalSec = DefaultDeviceScanIntervalSec
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.MaxAlerts == 0 {
		cfg.MaxAlerts = DefaultMaxAlerts
	}
	if cfg.SystemProcesses == nil {
		cfg.SystemProcesses = append([]string(nil), DefaultSystemProcesses...)
	}
	if cfg.Detection.PortScanThreshold == 0 {
		cfg.Detection.PortScanThreshold = DefaultPortScanThreshold
	}
	if cfg.Detection.PortScanHighThreshold == 0 {
		cfg.Detection.PortScanHighThreshold = DefaultPortScanHighThreshold
	}
	if cfg.Detection.TrafficMultiplier == 0 {
		cfg.Detection.TrafficMultiplier = DefaultTrafficMultiplier
	}
	if cfg.Detection.TrafficMinSamples == 0 {
		cfg.Detection.TrafficMinSamples = DefaultTrafficMinSamples
	}
	if cfg.Detection.TrustedProcesses == nil {
		cfg.Detection.TrustedProcesses = append([]string(nil), DefaultTrustedProcesses...)
	}
}

// Validate performs minimal validation of threshold sanity.
func Validate(cfg Config) error {
	if cfg.TickIntervalSec < 1 {
		return fmt.Errorf("tick_interval_sec must be >= 1, got %d", cfg.TickIntervalSec)
	}
	if cfg.DeviceScanIntervalSec < cfg.TickIntervalSec {
		return fmt.Errorf("device_scan_interval_sec must be >= tick_interval_sec")
	}
	if cfg.HistorySize < 1 {
		return fmt.Errorf("history_size must be >= 1, got %d", cfg.HistorySize)
	}
	if cfg.Detection.PortScanHighThreshold < cfg.Detection.PortScanThreshold {
		return fmt.Errorf("port_scan_high_threshold must be >= port_scan_threshold")
	}
	if cfg.Detection.TrafficMultiplier <= 1 {
		return fmt.Errorf("traffic_multiplier must be > 1, got %g", cfg.Detection.TrafficMultiplier)
	}
	return nil
}
