// Package config loads timeclock configuration from a YAML file with
// environment overrides. Precedence: flags > environment > file >
// defaults (flags are applied by the CLI layer).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the CLI, server and reconciler need.
type Config struct {
	// RemoteURL is the base URL of the authoritative attendance store.
	RemoteURL string `yaml:"remoteUrl"`

	// CachePath is the SQLite file for the local fallback cache.
	CachePath string `yaml:"cachePath"`

	// ServerDBPath is the SQLite file backing `timeclock serve`.
	ServerDBPath string `yaml:"serverDbPath"`

	// ListenAddr is the bind address for `timeclock serve`.
	ListenAddr string `yaml:"listenAddr"`

	// Timezone resolves the worker's local calendar day.
	Timezone string `yaml:"timezone"`

	// RemoteTimeout bounds each remote store call.
	RemoteTimeout time.Duration `yaml:"remoteTimeout"`

	// SyncInterval is the period of the background reconciler.
	SyncInterval time.Duration `yaml:"syncInterval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RemoteURL:     "http://localhost:8433",
		CachePath:     "timeclock-cache.db",
		ServerDBPath:  "timeclock.db",
		ListenAddr:    ":8433",
		Timezone:      "Local",
		RemoteTimeout: 5 * time.Second,
		SyncInterval:  time.Minute,
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.RemoteURL == "" {
		return fmt.Errorf("config: remoteUrl must not be empty")
	}
	if c.CachePath == "" {
		return fmt.Errorf("config: cachePath must not be empty")
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("config: remoteTimeout must be positive")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("config: syncInterval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// applyEnv overrides fields from TIMECLOCK_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TIMECLOCK_REMOTE_URL"); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv("TIMECLOCK_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("TIMECLOCK_SERVER_DB"); v != "" {
		cfg.ServerDBPath = v
	}
	if v := os.Getenv("TIMECLOCK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TIMECLOCK_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("TIMECLOCK_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RemoteTimeout = d
		}
	}
	if v := os.Getenv("TIMECLOCK_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}
}
