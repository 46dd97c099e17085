package crypto

import "fmt"

// Manager is the central place a host application generates, stores,
// and looks up device/user identity key pairs.
type Manager struct {
	storage KeyStorage
}

// NewManager creates a Manager backed by the given storage (typically
// crypto/storage's in-memory implementation).
func NewManager(storage KeyStorage) *Manager {
	return &Manager{storage: storage}
}

// GenerateKeyPair generates a new key pair of the given type.
func (m *Manager) GenerateKeyPair(keyType KeyType) (KeyPair, error) {
	switch keyType {
	case KeyTypeEd25519:
		return GenerateEd25519KeyPair()
	case KeyTypeSecp256k1:
		return GenerateSecp256k1KeyPair()
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyType, keyType)
	}
}

func (m *Manager) StoreKeyPair(keyPair KeyPair) error      { return m.storage.Store(keyPair.ID(), keyPair) }
func (m *Manager) LoadKeyPair(id string) (KeyPair, error)  { return m.storage.Load(id) }
func (m *Manager) DeleteKeyPair(id string) error           { return m.storage.Delete(id) }
func (m *Manager) ListKeyPairs() ([]string, error)         { return m.storage.List() }
