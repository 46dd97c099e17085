// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meshid/teamauth/pkg/storage"
)

// IdentityStore implements storage.IdentityStore for PostgreSQL.
type IdentityStore struct {
	db *pgxpool.Pool
}

func (d *IdentityStore) Create(ctx context.Context, identity *storage.Identity) error {
	query := `
		INSERT INTO identities (peer_id, public_key, key_type, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := d.db.Exec(ctx, query,
		identity.PeerID,
		identity.PublicKey,
		identity.KeyType,
		identity.Revoked,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

func (d *IdentityStore) Get(ctx context.Context, peerID string) (*storage.Identity, error) {
	query := `
		SELECT peer_id, public_key, key_type, revoked, created_at, updated_at
		FROM identities
		WHERE peer_id = $1
	`

	var result storage.Identity
	err := d.db.QueryRow(ctx, query, peerID).Scan(
		&result.PeerID,
		&result.PublicKey,
		&result.KeyType,
		&result.Revoked,
		&result.CreatedAt,
		&result.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("identity not found: %s", peerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return &result, nil
}

func (d *IdentityStore) Update(ctx context.Context, identity *storage.Identity) error {
	query := `
		UPDATE identities
		SET public_key = $1, key_type = $2, revoked = $3
		WHERE peer_id = $4
	`

	result, err := d.db.Exec(ctx, query,
		identity.PublicKey,
		identity.KeyType,
		identity.Revoked,
		identity.PeerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identity not found: %s", identity.PeerID)
	}

	return nil
}

func (d *IdentityStore) Delete(ctx context.Context, peerID string) error {
	query := `DELETE FROM identities WHERE peer_id = $1`

	result, err := d.db.Exec(ctx, query, peerID)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identity not found: %s", peerID)
	}

	return nil
}

func (d *IdentityStore) Revoke(ctx context.Context, peerID string) error {
	query := `UPDATE identities SET revoked = true WHERE peer_id = $1`

	result, err := d.db.Exec(ctx, query, peerID)
	if err != nil {
		return fmt.Errorf("failed to revoke identity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("identity not found: %s", peerID)
	}

	return nil
}

func (d *IdentityStore) IsRevoked(ctx context.Context, peerID string) (bool, error) {
	query := `SELECT revoked FROM identities WHERE peer_id = $1`

	var revoked bool
	err := d.db.QueryRow(ctx, query, peerID).Scan(&revoked)
	if err == pgx.ErrNoRows {
		return false, fmt.Errorf("identity not found: %s", peerID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check identity revocation: %w", err)
	}

	return revoked, nil
}
