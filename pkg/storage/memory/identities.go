// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"fmt"

	"github.com/meshid/teamauth/pkg/storage"
)

// IdentityStore implements storage.IdentityStore.
type IdentityStore struct {
	store *Store
}

func (d *IdentityStore) Create(ctx context.Context, identity *storage.Identity) error {
	d.store.identitiesMu.Lock()
	defer d.store.identitiesMu.Unlock()

	if _, exists := d.store.identities[identity.PeerID]; exists {
		return fmt.Errorf("identity already exists: %s", identity.PeerID)
	}

	identityCopy := *identity
	if identity.PublicKey != nil {
		identityCopy.PublicKey = make([]byte, len(identity.PublicKey))
		copy(identityCopy.PublicKey, identity.PublicKey)
	}

	d.store.identities[identity.PeerID] = &identityCopy
	return nil
}

func (d *IdentityStore) Get(ctx context.Context, peerID string) (*storage.Identity, error) {
	d.store.identitiesMu.RLock()
	defer d.store.identitiesMu.RUnlock()

	identity, exists := d.store.identities[peerID]
	if !exists {
		return nil, fmt.Errorf("identity not found: %s", peerID)
	}

	identityCopy := *identity
	return &identityCopy, nil
}

func (d *IdentityStore) Update(ctx context.Context, identity *storage.Identity) error {
	d.store.identitiesMu.Lock()
	defer d.store.identitiesMu.Unlock()

	if _, exists := d.store.identities[identity.PeerID]; !exists {
		return fmt.Errorf("identity not found: %s", identity.PeerID)
	}

	identityCopy := *identity
	d.store.identities[identity.PeerID] = &identityCopy
	return nil
}

func (d *IdentityStore) Delete(ctx context.Context, peerID string) error {
	d.store.identitiesMu.Lock()
	defer d.store.identitiesMu.Unlock()

	if _, exists := d.store.identities[peerID]; !exists {
		return fmt.Errorf("identity not found: %s", peerID)
	}

	delete(d.store.identities, peerID)
	return nil
}

func (d *IdentityStore) Revoke(ctx context.Context, peerID string) error {
	d.store.identitiesMu.Lock()
	defer d.store.identitiesMu.Unlock()

	identity, exists := d.store.identities[peerID]
	if !exists {
		return fmt.Errorf("identity not found: %s", peerID)
	}

	identity.Revoked = true
	return nil
}

func (d *IdentityStore) IsRevoked(ctx context.Context, peerID string) (bool, error) {
	d.store.identitiesMu.RLock()
	defer d.store.identitiesMu.RUnlock()

	identity, exists := d.store.identities[peerID]
	if !exists {
		return false, fmt.Errorf("identity not found: %s", peerID)
	}

	return identity.Revoked, nil
}
