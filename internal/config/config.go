package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fleetsim.yml. Timing fields are milliseconds so the file
// states the simulation constants exactly as they are documented.
type Config struct {
	Fleet struct {
		Size int `yaml:"size"`
	} `yaml:"fleet"`
	Simulation struct {
		MissionIntervalMs int `yaml:"mission_interval_ms"`
		MissionsPerTick   int `yaml:"missions_per_tick"`
		SweepIntervalMs   int `yaml:"sweep_interval_ms"`
		CleanupIntervalMs int `yaml:"cleanup_interval_ms"`
		RetentionMs       int `yaml:"retention_ms"`
		Dwell             struct {
			Assigned   Range `yaml:"assigned"`
			EnRoute    Range `yaml:"en_route"`
			Delivering Range `yaml:"delivering"`
			Completed  Range `yaml:"completed"`
		} `yaml:"dwell"`
		EstimatedDuration Range `yaml:"estimated_duration"`
	} `yaml:"simulation"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Range is an inclusive [min,max] window in milliseconds.
type Range struct {
	MinMs int `yaml:"min_ms"`
	MaxMs int `yaml:"max_ms"`
}

func (r Range) Min() time.Duration { return time.Duration(r.MinMs) * time.Millisecond }
func (r Range) Max() time.Duration { return time.Duration(r.MaxMs) * time.Millisecond }

type WebhookConfig struct {
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Fleet.Size <= 0 {
		return fmt.Errorf("config.fleet.size must be positive")
	}
	sim := &c.Simulation
	if sim.MissionIntervalMs <= 0 {
		return fmt.Errorf("config.simulation.mission_interval_ms must be positive")
	}
	if sim.MissionsPerTick <= 0 {
		return fmt.Errorf("config.simulation.missions_per_tick must be positive")
	}
	if sim.SweepIntervalMs <= 0 {
		return fmt.Errorf("config.simulation.sweep_interval_ms must be positive")
	}
	if sim.CleanupIntervalMs <= 0 {
		return fmt.Errorf("config.simulation.cleanup_interval_ms must be positive")
	}
	if sim.RetentionMs < 0 {
		return fmt.Errorf("config.simulation.retention_ms must not be negative")
	}
	for name, r := range map[string]Range{
		"dwell.assigned":     sim.Dwell.Assigned,
		"dwell.en_route":     sim.Dwell.EnRoute,
		"dwell.delivering":   sim.Dwell.Delivering,
		"dwell.completed":    sim.Dwell.Completed,
		"estimated_duration": sim.EstimatedDuration,
	} {
		if r.MinMs <= 0 {
			return fmt.Errorf("config.simulation.%s.min_ms must be positive", name)
		}
		if r.MaxMs < r.MinMs {
			return fmt.Errorf("config.simulation.%s.max_ms must be >= min_ms", name)
		}
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Default returns the built-in configuration, which reproduces the
// reference simulation constants exactly.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Omitted
// sections inherit the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `fleet:
  size: 8

simulation:
  mission_interval_ms: 60000
  missions_per_tick: 2
  sweep_interval_ms: 10000
  cleanup_interval_ms: 300000
  retention_ms: 3600000
  dwell:
    assigned:
      min_ms: 30000
      max_ms: 60000
    en_route:
      min_ms: 60000
      max_ms: 120000
    delivering:
      min_ms: 120000
      max_ms: 300000
    completed:
      min_ms: 10000
      max_ms: 30000
  estimated_duration:
    min_ms: 180000
    max_ms: 480000

server:
  addr: 127.0.0.1:8080
  base_path: /v1

logging:
  level: info
  format: console
`
