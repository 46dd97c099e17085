// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import "fmt"

var validKeyTypes = map[string]bool{
	"ed25519":   true,
	"secp256k1": true,
}

var validStorageTypes = map[string]bool{
	"memory":   true,
	"postgres": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a loaded configuration for internally inconsistent
// or unsupported settings. It only rejects values that would cause a
// component to fail to start; it does not duplicate what setDefaults
// already fills in.
func Validate(cfg *Config) error {
	if cfg.Identity != nil && cfg.Identity.KeyType != "" && !validKeyTypes[cfg.Identity.KeyType] {
		return fmt.Errorf("invalid identity key type: %s", cfg.Identity.KeyType)
	}

	if cfg.Storage != nil && cfg.Storage.Type != "" {
		if !validStorageTypes[cfg.Storage.Type] {
			return fmt.Errorf("invalid storage type: %s", cfg.Storage.Type)
		}
		if cfg.Storage.Type == "postgres" && cfg.Storage.DSN == "" {
			return fmt.Errorf("storage dsn is required for postgres storage")
		}
	}

	if cfg.Logging != nil && cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}
