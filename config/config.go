// Copyright (c) 2024 Elisamuel Resto Donate <sam@samresto.dev>
// SPDX-License-Identifier: MIT

// Package config handles YAML configuration file parsing and
// validation for the name server: listen address, authoritative
// zones, recursive-resolver seeds, the on-disk record cache, metrics,
// and logging.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Zones    []ZoneConfig   `yaml:"zones"`
	Resolver ResolverConfig `yaml:"resolver"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Bind           string `yaml:"bind"`
	TimeoutSeconds int    `yaml:"timeout"`
	AutoReload     bool   `yaml:"auto_reload"`     // watch zone/ACL files for changes
	ReloadDebounce int    `yaml:"reload_debounce"` // debounce in seconds (default: 2)
}

// ZoneConfig describes one authoritative zone: the master files that
// make it up (carrying its own SOA/NS/other records), and the ACL
// gating who may query it.
type ZoneConfig struct {
	Name    string     `yaml:"name"`
	Files   []string   `yaml:"files"`
	ACL     string     `yaml:"acl"`       // path to ACL file
	ACLRule ACLRuleSet `yaml:"acl_rules"` // inline ACL rules
}

// ACLRuleSet defines allow/deny rules inline in config.
type ACLRuleSet struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// ResolverConfig configures the recursive-resolution fallback used
// for queries the zone catalog has no authority over.
type ResolverConfig struct {
	Seeds          []string `yaml:"seeds"`       // nameserver addresses tried before the root servers
	TimeoutSeconds int      `yaml:"timeout"`      // per-hint UDP timeout
	DefaultTTL     uint32   `yaml:"default_ttl"`  // TTL stamped on synthesized recursive answers
	TTLOverride    uint32   `yaml:"ttl_override"` // -t/--ttl: replaces the TTL of every record cached during resolution; 0 = keep the TTL it arrived with
}

// CacheConfig configures the shared record cache's persistence and
// sweep behavior.
type CacheConfig struct {
	File          string `yaml:"file"`           // JSON persistence path; empty disables persistence
	SweepInterval int    `yaml:"sweep_interval"` // seconds between opportunistic sweeps
}

type MetricsConfig struct {
	PrometheusEndpoint string `yaml:"prometheus_endpoint"`
	OTELEndpoint       string `yaml:"otel_endpoint"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Bind:           "0.0.0.0:5353",
			TimeoutSeconds: 5,
			AutoReload:     true,
			ReloadDebounce: 2,
		},
		Resolver: ResolverConfig{
			TimeoutSeconds: 5,
			DefaultTTL:     300,
		},
		Cache: CacheConfig{
			SweepInterval: 3600,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Example returns a sample YAML configuration document.
func Example() string {
	return `# rdnsd configuration

server:
  bind: "0.0.0.0:5353"
  timeout: 5
  auto_reload: true        # watch zone/ACL files and reload on change
  reload_debounce: 2       # seconds to wait after a change before reloading

zones:
  - name: example.com
    files:
      - /etc/rdnsd/example.com.zone
    acl_rules:
      allow:
        - 192.168.0.0/16
        - 10.0.0.0/8
        - 127.0.0.1

  - name: internal.example.com
    files:
      - /etc/rdnsd/internal.example.com.zone
    acl: /etc/rdnsd/internal-acl.txt

resolver:
  seeds: []                # nameservers tried before the compiled-in root servers
  timeout: 5
  default_ttl: 300          # TTL applied to synthesized recursive answers
  ttl_override: 0           # -t/--ttl: 0 = cache records keep the TTL they arrived with

cache:
  file: /var/lib/rdnsd/cache.json
  sweep_interval: 3600

metrics:
  prometheus_endpoint: "localhost:9090"
  otel_endpoint: "localhost:4318"

logging:
  level: "info"
`
}
