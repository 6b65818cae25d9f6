package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Fleet.Size != 8 {
		t.Fatalf("expected fleet size 8, got %d", cfg.Fleet.Size)
	}
	if cfg.Simulation.MissionIntervalMs != 60000 || cfg.Simulation.MissionsPerTick != 2 {
		t.Fatalf("unexpected mission generation defaults: %+v", cfg.Simulation)
	}
	if cfg.Simulation.SweepIntervalMs != 10000 {
		t.Fatalf("expected 10s sweep, got %d", cfg.Simulation.SweepIntervalMs)
	}
	if cfg.Simulation.Dwell.Delivering.Min() != 120*time.Second || cfg.Simulation.Dwell.Delivering.Max() != 300*time.Second {
		t.Fatalf("unexpected delivering dwell: %+v", cfg.Simulation.Dwell.Delivering)
	}
	if cfg.Server.Addr == "" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("fleet:\n  size: 3\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Fleet.Size != 3 {
		t.Fatalf("override lost, got %d", cfg.Fleet.Size)
	}
	// untouched sections keep the defaults
	if cfg.Simulation.RetentionMs != 3600000 {
		t.Fatalf("default retention lost, got %d", cfg.Simulation.RetentionMs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero fleet":         func(c *Config) { c.Fleet.Size = 0 },
		"zero interval":      func(c *Config) { c.Simulation.MissionIntervalMs = 0 },
		"zero per tick":      func(c *Config) { c.Simulation.MissionsPerTick = 0 },
		"negative retention": func(c *Config) { c.Simulation.RetentionMs = -1 },
		"inverted dwell":     func(c *Config) { c.Simulation.Dwell.Assigned.MaxMs = c.Simulation.Dwell.Assigned.MinMs - 1 },
		"empty addr":         func(c *Config) { c.Server.Addr = "" },
		"empty webhook url":  func(c *Config) { c.Webhooks = []WebhookConfig{{URL: ""}} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Fleet.Size != 8 {
		t.Fatalf("expected defaults, got %+v", cfg.Fleet)
	}

	path := filepath.Join(t.TempDir(), "fleetsim.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOptional(path); err != nil {
		t.Fatalf("generated default should parse: %v", err)
	}
}
