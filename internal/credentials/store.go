// Package credentials keeps the OpenAI API key in a local secure store and resolves it for
// ingestion and retrieval.
package credentials

import (
	"errors"
	"sync"
)

// ErrMissingAPIKey is returned when no usable key is stored.
var ErrMissingAPIKey = errors.New("missing OpenAI API key")

// Store is a service/account keyed secret store.
type Store interface {
	// Read returns the secret and whether it exists.
	Read(service, account string) (string, bool, error)
	Write(service, account, secret string) error
	// Delete removes the secret; deleting a missing secret is not an error.
	Delete(service, account string) error
}

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func memoryKey(service, account string) string {
	return service + "\x00" + account
}

func (m *MemoryStore) Read(service, account string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.secrets[memoryKey(service, account)]
	return s, ok, nil
}

func (m *MemoryStore) Write(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[memoryKey(service, account)] = secret
	return nil
}

func (m *MemoryStore) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, memoryKey(service, account))
	return nil
}
