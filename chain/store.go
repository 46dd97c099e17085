// Copyright (c) 2025 meshid contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package chain

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store persists chain snapshots keyed by team root hash, so a host
// process can restart without losing a team's signature chain. It is
// a thin wrapper: the chain itself stays the source of truth in
// memory, Store only durably mirrors Save()'s output.
type Store struct {
	db *pebble.DB
}

// OpenStore opens (creating if absent) a pebble-backed snapshot store
// at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("chain: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pebble handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist saves c's current snapshot under its root hash.
func (s *Store) Persist(c *Chain) error {
	blob, err := c.Save()
	if err != nil {
		return err
	}
	return s.db.Set([]byte(c.Root()), blob, pebble.Sync)
}

// Restore loads a previously persisted snapshot for root, if any.
func (s *Store) Restore(root string) (*Chain, error) {
	blob, closer, err := s.db.Get([]byte(root))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("chain: restore snapshot: %w", err)
	}
	defer closer.Close()

	cp := make([]byte, len(blob))
	copy(cp, blob)

	var empty Chain
	team, err := empty.Load(cp)
	if err != nil {
		return nil, err
	}
	return team.(*Chain), nil
}
