package securestore

import (
	"context"
	"sync"
)

// Keystore is the bridge interface over the platform's secure storage
// facility. Implementations store ciphertext only; the [Store] owns
// encryption. All methods must be safe for concurrent use.
type Keystore interface {
	Get(ctx context.Context, service, key string) ([]byte, error)
	Set(ctx context.Context, service, key string, value []byte) error
	// Delete removes one entry. Deleting a missing entry succeeds.
	Delete(ctx context.Context, service, key string) error
	// DeleteAll removes every entry under a service.
	DeleteAll(ctx context.Context, service string) error
	Ping(ctx context.Context) error
}

// MemoryKeystore is a process-local [Keystore] for tests and callers that
// accept losing entries on process exit.
type MemoryKeystore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryKeystore describes the newmemorykeystore operation and its observable behavior.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{entries: make(map[string][]byte)}
}

func memKey(service, key string) string {
	return service + "\x00" + key
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryKeystore) Get(_ context.Context, service, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[memKey(service, key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryKeystore) Set(_ context.Context, service, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memKey(service, key)] = stored
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryKeystore) Delete(_ context.Context, service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey(service, key))
	return nil
}

// DeleteAll describes the deleteall operation and its observable behavior.
//
// DeleteAll may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryKeystore) DeleteAll(_ context.Context, service string) error {
	prefix := service + "\x00"

	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
	return nil
}

// Ping describes the ping operation and its observable behavior.
func (m *MemoryKeystore) Ping(context.Context) error {
	return nil
}
