package authkit

import (
	"context"
	"sync"
)

// MemoryUserStore defines a public type used by authkit APIs.
//
// MemoryUserStore keeps user records in process memory. It exists for tests
// and single-node development setups; production deployments supply their
// own [UserStore] backed by durable storage.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]UserRecord
	byEmail map[string]string
}

// NewMemoryUserStore describes the newmemoryuserstore operation and its observable behavior.
//
// NewMemoryUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]UserRecord),
		byEmail: make(map[string]string),
	}
}

// GetUserByEmail describes the getuserbyemail operation and its observable behavior.
//
// GetUserByEmail may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return UserRecord{}, ErrStoreUserNotFound
	}
	return m.byID[id], nil
}

// GetUserByID describes the getuserbyid operation and its observable behavior.
//
// GetUserByID may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.byID[userID]
	if !ok {
		return UserRecord{}, ErrStoreUserNotFound
	}
	return record, nil
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryUserStore) CreateUser(_ context.Context, record UserRecord) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[record.Email]; exists {
		return UserRecord{}, ErrStoreDuplicateEmail
	}

	m.byID[record.UserID] = record
	m.byEmail[record.Email] = record.UserID

	return record, nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
func (m *MemoryUserStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byID[userID]
	if !ok {
		return ErrStoreUserNotFound
	}

	record.PasswordHash = hash
	m.byID[userID] = record

	return nil
}
