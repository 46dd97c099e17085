// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the settings a teamauth process
// needs to run a pairwise connection: which key this device signs
// with, where it dials the relay, how long a session or an in-flight
// handshake is allowed to sit idle, and where session/nonce/identity
// bookkeeping is persisted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure, loaded from YAML/JSON and
// layered with environment variable overrides.
type Config struct {
	Environment string           `yaml:"environment" json:"environment"`
	Identity    *IdentityConfig  `yaml:"identity" json:"identity"`
	Transport   *TransportConfig `yaml:"transport" json:"transport"`
	Storage     *StorageConfig   `yaml:"storage" json:"storage"`
	Session     *SessionConfig   `yaml:"session" json:"session"`
	Handshake   *HandshakeConfig `yaml:"handshake" json:"handshake"`
	Logging     *LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig    `yaml:"health" json:"health"`
}

// IdentityConfig describes the local device's signing key.
type IdentityConfig struct {
	KeyType   string `yaml:"key_type" json:"key_type"` // ed25519, secp256k1
	KeyPath   string `yaml:"key_path" json:"key_path"`
	PeerName  string `yaml:"peer_name" json:"peer_name"`
	TeamAdmin bool   `yaml:"team_admin" json:"team_admin"`
}

// TransportConfig describes how this process reaches its peer.
type TransportConfig struct {
	RelayURL      string        `yaml:"relay_url" json:"relay_url"`
	DialTimeout   time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	PingInterval  time.Duration `yaml:"ping_interval" json:"ping_interval"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" json:"reconnect_wait"`
}

// StorageConfig selects the backing store for session/nonce/identity
// bookkeeping. It never configures persistence of the connection FSM
// itself, which always lives only in the running process.
type StorageConfig struct {
	Type string `yaml:"type" json:"type"` // memory, postgres
	DSN  string `yaml:"dsn" json:"dsn"`
}

// SessionConfig bounds the lifetime of an established connection's
// bookkeeping record.
type SessionConfig struct {
	MaxIdleTime     time.Duration `yaml:"max_idle_time" json:"max_idle_time"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	MaxSessions     int           `yaml:"max_sessions" json:"max_sessions"`
}

// HandshakeConfig bounds a single connection attempt: how long the FSM
// waits in a given state before giving up, and the retry policy for
// transport-level reconnects.
type HandshakeConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Port    int      `yaml:"port" json:"port"`
	Path    string   `yaml:"path" json:"path"`
	Checks  []string `yaml:"checks" json:"checks"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	// Try to parse as YAML first
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Try JSON if YAML fails
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing JSON or YAML by
// the file extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in zero-valued fields with sane defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Identity != nil {
		if cfg.Identity.KeyType == "" {
			cfg.Identity.KeyType = "ed25519"
		}
		if cfg.Identity.KeyPath == "" {
			cfg.Identity.KeyPath = ".teamauth/identity.key"
		}
	}

	if cfg.Transport != nil {
		if cfg.Transport.DialTimeout == 0 {
			cfg.Transport.DialTimeout = 10 * time.Second
		}
		if cfg.Transport.PingInterval == 0 {
			cfg.Transport.PingInterval = 30 * time.Second
		}
		if cfg.Transport.ReconnectWait == 0 {
			cfg.Transport.ReconnectWait = 2 * time.Second
		}
	}

	if cfg.Storage != nil {
		if cfg.Storage.Type == "" {
			cfg.Storage.Type = "memory"
		}
	}

	if cfg.Session != nil {
		if cfg.Session.MaxIdleTime == 0 {
			cfg.Session.MaxIdleTime = 30 * time.Minute
		}
		if cfg.Session.CleanupInterval == 0 {
			cfg.Session.CleanupInterval = 5 * time.Minute
		}
		if cfg.Session.MaxSessions == 0 {
			cfg.Session.MaxSessions = 10000
		}
	}

	if cfg.Handshake != nil {
		if cfg.Handshake.Timeout == 0 {
			cfg.Handshake.Timeout = 30 * time.Second
		}
		if cfg.Handshake.MaxRetries == 0 {
			cfg.Handshake.MaxRetries = 3
		}
		if cfg.Handshake.RetryBackoff == 0 {
			cfg.Handshake.RetryBackoff = 1 * time.Second
		}
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}
}
