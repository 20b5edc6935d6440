package session

import (
	"context"
	"sync"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps the tokens in a map keyed by KeyAccess and KeyRefresh,
// mirroring the browser's key/value storage. Process lifetime only.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryStore creates an empty in-memory token store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		values: make(map[string]string),
	}
}

// Load returns the stored session
func (m *InMemoryStore) Load(_ context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Session{
		AccessToken:  m.values[KeyAccess],
		RefreshToken: m.values[KeyRefresh],
	}, nil
}

// Save replaces both tokens
func (m *InMemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(KeyAccess, s.AccessToken)
	m.set(KeyRefresh, s.RefreshToken)
	return nil
}

// SetAccessToken replaces the access token, leaving the refresh token as is
func (m *InMemoryStore) SetAccessToken(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(KeyAccess, accessToken)
	return nil
}

// Clear removes both tokens
func (m *InMemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, KeyAccess)
	delete(m.values, KeyRefresh)
	return nil
}

// Keys lists the keys currently held. Used by tests to assert logout.
func (m *InMemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

func (m *InMemoryStore) set(key, value string) {
	if value == "" {
		delete(m.values, key)
		return
	}
	m.values[key] = value
}
