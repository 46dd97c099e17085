// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package session derives and holds the symmetric session key a
// connected pair of peers uses to encrypt ENCRYPTED_MESSAGE payloads
// (§4.D of the connection protocol), plus a registry of active
// sessions for a long-running process hosting several connections.
package session

import "time"

const GeneralPrefix = "session"

// Config defines session policies and limits.
type Config struct {
	MaxAge      time.Duration `json:"maxAge"`
	IdleTimeout time.Duration `json:"idleTimeout"`
	MaxMessages int           `json:"maxMessages"`
}

// Status summarizes a Manager's current session population.
type Status struct {
	TotalSessions   int `json:"totalSessions"`
	ActiveSessions  int `json:"activeSessions"`
	ExpiredSessions int `json:"expiredSessions"`
}
