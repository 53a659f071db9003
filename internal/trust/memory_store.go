package trust

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory trust store for demo/development mode.
type MemoryStore struct {
	users map[string]*User
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory trust store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
	}
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *MemoryStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.UserID]; ok {
		return ErrUserExists
	}
	stored := copyUser(u)
	stored.Version = 1
	m.users[u.UserID] = stored
	u.Version = 1
	return nil
}

func (m *MemoryStore) Save(ctx context.Context, u *User, newOverride *Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[u.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if stored.Version != u.Version {
		return ErrVersionConflict
	}

	// The Store contract has the caller append newOverride to u.Overrides
	// before Save; the copy below persists it. Reject a record that breaks
	// that contract rather than losing the override silently.
	if newOverride != nil {
		if n := len(u.Overrides); n == 0 || u.Overrides[n-1].ID != newOverride.ID {
			return fmt.Errorf("trust: override %s missing from history", newOverride.ID)
		}
	}

	next := copyUser(u)
	next.Version = stored.Version + 1
	m.users[u.UserID] = next
	u.Version = next.Version
	return nil
}

// copyUser returns a deep copy so callers never share slices or pointers
// with the stored record.
func copyUser(u *User) *User {
	cp := *u
	if u.LastOverrideAt != nil {
		t := *u.LastOverrideAt
		cp.LastOverrideAt = &t
	}
	if u.Overrides != nil {
		cp.Overrides = make([]Override, len(u.Overrides))
		copy(cp.Overrides, u.Overrides)
	}
	return &cp
}
