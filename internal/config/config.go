// Package config provides configuration management for lodestone.
//
// Config file locations (priority order):
//  1. $LODESTONE_CONFIG
//  2. ./lodestone.yaml
//  3. ~/.config/lodestone/config.yaml
//  4. /etc/lodestone/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Designs  DesignsConfig  `yaml:"designs"`
	Scan     ScanConfig     `yaml:"scan"`
	Probe    ProbeConfig    `yaml:"probe"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DesignsConfig holds design directory settings. When Dir is set, design
// files dropped there are applied automatically and re-applied on change.
type DesignsConfig struct {
	Dir   string `yaml:"dir,omitempty"`
	Watch bool   `yaml:"watch"`
}

// ScanConfig controls the nmap discovery adapter
type ScanConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// ProbeConfig controls the SSH fact probe
type ProbeConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PollInterval string `yaml:"poll_interval,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	KeyFile      string `yaml:"key_file,omitempty"`
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, path, nil
}

// FindConfigPath returns the first config file that exists, or ""
func FindConfigPath() string {
	candidates := []string{
		os.Getenv("LODESTONE_CONFIG"),
		"./lodestone.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "lodestone", "config.yaml"))
	}
	candidates = append(candidates, "/etc/lodestone/config.yaml")

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./lodestone.db"
	}
	if c.Scan.PollInterval == "" {
		c.Scan.PollInterval = "5m"
	}
	if c.Probe.PollInterval == "" {
		c.Probe.PollInterval = "10m"
	}
}
