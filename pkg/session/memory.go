package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It suits tests and
// single-instance development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Session
	byToken map[string]string
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Session),
		byToken: make(map[string]string),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry checks.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[s.ID] = clone(s)
	m.byToken[s.Token] = s.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.IsExpired(m.now()) {
		return nil, ErrExpired
	}
	return clone(s), nil
}

func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Token != s.Token {
		delete(m.byToken, prev.Token)
		m.byToken[s.Token] = s.ID
	}
	m.byID[s.ID] = clone(s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(id)
	return nil
}

func (m *MemoryStore) DeleteByPrincipal(_ context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.byID {
		if s.PrincipalID != nil && *s.PrincipalID == principalID {
			m.deleteLocked(id)
		}
	}
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, lastActiveAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActiveAt = lastActiveAt
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.byID {
		if s.ExpiresAt.Before(before) {
			m.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *MemoryStore) deleteLocked(id string) {
	if s, ok := m.byID[id]; ok {
		delete(m.byToken, s.Token)
		delete(m.byID, id)
	}
}

func clone(s *Session) *Session {
	cp := *s
	cp.Values = maps.Clone(s.Values)
	if cp.Values == nil {
		cp.Values = make(map[string]any)
	}
	if s.PrincipalID != nil {
		pid := *s.PrincipalID
		cp.PrincipalID = &pid
	}
	cp.dirty = false
	cp.isNew = false
	return &cp
}
