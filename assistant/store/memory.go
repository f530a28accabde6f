package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemStore is an in-memory Store.
//
// Data is lost when the process exits. Useful for tests, development and
// running without a database.
type MemStore struct {
	mu         sync.RWMutex
	users      []User
	byUsername map[string]int
	chats      []ChatRecord
	closed     bool
	now        func() time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byUsername: make(map[string]int),
		now:        time.Now,
	}
}

func (m *MemStore) FindUser(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return User{}, ErrClosed
	}
	idx, ok := m.byUsername[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return normalizeUser(m.users[idx]), nil
}

func (m *MemStore) CreateUser(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return User{}, ErrClosed
	}
	if _, ok := m.byUsername[user.Username]; ok {
		return User{}, ErrDuplicate
	}

	user.ID = ulid.Make().String()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now().UTC()
	}
	m.byUsername[user.Username] = len(m.users)
	m.users = append(m.users, user)
	return normalizeUser(user), nil
}

func (m *MemStore) ListUsers(_ context.Context, limit int) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	n := clampLimit(limit, len(m.users))
	out := make([]User, n)
	for i := 0; i < n; i++ {
		out[i] = normalizeUser(m.users[i])
	}
	return out, nil
}

func (m *MemStore) SaveChat(_ context.Context, record ChatRecord) (ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ChatRecord{}, ErrClosed
	}
	record.ID = ulid.Make().String()
	if record.Timestamp.IsZero() {
		record.Timestamp = m.now().UTC()
	}
	m.chats = append(m.chats, record)
	return record, nil
}

func (m *MemStore) ListChats(_ context.Context, limit int) ([]ChatRecord, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	// Reverse insertion order so later records win timestamp ties.
	sorted := make([]ChatRecord, 0, len(m.chats))
	for i := len(m.chats) - 1; i >= 0; i-- {
		sorted = append(sorted, m.chats[i])
	}
	m.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted[:clampLimit(limit, len(sorted))], nil
}

func (m *MemStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// clampLimit returns min(limit, n), treating a non-positive limit as n.
func clampLimit(limit, n int) int {
	if limit <= 0 || limit > n {
		return n
	}
	return limit
}
