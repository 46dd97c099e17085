// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package connect

import "time"

// Config parameterizes the per-phase timeouts the driver enforces.
// The source this protocol is modeled on left these unparameterized;
// defaults below were chosen as sensible values and are exposed for
// callers that need to tune them (spec.md §9).
type Config struct {
	// HandshakeTimeout bounds connecting (invitation + authenticating).
	HandshakeTimeout time.Duration
	// SyncTimeout bounds synchronizing + negotiating.
	SyncTimeout time.Duration
}

// DefaultConfig returns the spec-recommended timeout defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 30 * time.Second,
		SyncTimeout:      60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 60 * time.Second
	}
	return c
}
