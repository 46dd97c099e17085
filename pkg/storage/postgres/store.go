// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package postgres is the pgx-backed storage.Store implementation for
// deployments that need session/nonce/identity bookkeeping to survive
// a process restart (the connection FSM itself never does, per §4.E's
// Non-goal on state persistence).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meshid/teamauth/pkg/storage"
)

// Store implements storage.Store backed by PostgreSQL via pgx.
type Store struct {
	pool     *pgxpool.Pool
	session  *SessionStore
	nonce    *NonceStore
	identity *IdentityStore
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewStore creates a new PostgreSQL store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		pool: pool,
	}

	store.session = &SessionStore{db: pool}
	store.nonce = &NonceStore{db: pool}
	store.identity = &IdentityStore{db: pool}

	return store, nil
}

func (s *Store) SessionStore() storage.SessionStore   { return s.session }
func (s *Store) NonceStore() storage.NonceStore       { return s.nonce }
func (s *Store) IdentityStore() storage.IdentityStore { return s.identity }

// Close closes the database connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
