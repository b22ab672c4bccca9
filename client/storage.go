package client

import "sync"

// Storage keys. Kept stable so sessions survive a client restart when the
// backing storage is durable (keychain, localStorage bridge, config file).
const (
	KeyAccessToken  = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyUserProfile  = "user_profile"
)

// Storage defines a public type used by authkit APIs.
//
// Storage abstracts where the client keeps its three session values.
// Implementations must be safe for concurrent use.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStorage defines a public type used by authkit APIs.
//
// MemoryStorage instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage describes the newmemorystorage operation and its observable behavior.
//
// NewMemoryStorage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get describes the get operation and its observable behavior.
func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

// Set describes the set operation and its observable behavior.
func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Delete describes the delete operation and its observable behavior.
func (m *MemoryStorage) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}
