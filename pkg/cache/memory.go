package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	expiresAt time.Time // zero value = never expires
	storedAt  time.Time
	value     V
	key       string
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-memory cache with TTL expiration, optional LRU eviction
// and an optional stale window during which expired values remain readable
// through GetStale.
type Memory[V any] struct {
	items    map[string]*list.Element
	eviction *list.List
	opts     *memoryOptions
	onEvict  func(key string, value V)
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
}

// NewMemory creates a new in-memory cache.
//
//	c := cache.NewMemory[Index](
//	    cache.WithDefaultTTL(24 * time.Hour),
//	    cache.WithStaleRetention(-1),
//	)
//	defer c.Close()
func NewMemory[V any](opts ...MemoryOption) *Memory[V] {
	o := defaultMemoryOptions()
	for _, opt := range opts {
		opt(o)
	}

	m := &Memory[V]{
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		opts:     o,
		done:     make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go m.janitor()
	}

	return m
}

// SetEvictCallback registers fn to be called whenever an entry leaves the cache.
func (m *Memory[V]) SetEvictCallback(fn func(key string, value V)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = fn
}

// Get retrieves a value by key.
// Returns ErrNotFound if the key does not exist or has expired.
func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	elem, ok := m.items[key]
	if !ok {
		return zero, ErrNotFound
	}

	e := elem.Value.(*entry[V])
	now := m.opts.now()
	if e.expired(now) {
		if m.purgeable(e, now) {
			m.removeElement(elem)
		}
		return zero, ErrNotFound
	}

	m.eviction.MoveToFront(elem)
	return e.value, nil
}

// GetStale returns the value for key even when it has expired, as long as
// it is still inside the stale retention window. fresh reports whether the
// value is within its TTL.
func (m *Memory[V]) GetStale(_ context.Context, key string) (value V, fresh bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return value, false, ErrNotFound
	}

	e := elem.Value.(*entry[V])
	now := m.opts.now()
	if m.purgeable(e, now) {
		m.removeElement(elem)
		return value, false, ErrNotFound
	}

	m.eviction.MoveToFront(elem)
	return e.value, !e.expired(now), nil
}

// StoredAt returns when the value for key was last written.
func (m *Memory[V]) StoredAt(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return time.Time{}, false
	}
	return elem.Value.(*entry[V]).storedAt, true
}

// Set stores a value with the given TTL.
// TTL semantics: positive = expires after duration, zero = use default TTL,
// negative = never expires.
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if ttl == 0 {
		ttl = m.opts.defaultTTL
	}

	now := m.opts.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		e.storedAt = now
		m.eviction.MoveToFront(elem)
		return nil
	}

	if m.opts.maxEntries > 0 && len(m.items) >= m.opts.maxEntries {
		if oldest := m.eviction.Back(); oldest != nil {
			m.removeElement(oldest)
		}
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt, storedAt: now}
	m.items[key] = m.eviction.PushFront(e)
	return nil
}

// Delete removes a key from the cache.
func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

// Has checks whether a key exists and has not expired.
func (m *Memory[V]) Has(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Clear removes all entries from the cache.
func (m *Memory[V]) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if m.onEvict != nil {
		for _, elem := range m.items {
			e := elem.Value.(*entry[V])
			m.onEvict(e.key, e.value)
		}
	}

	m.items = make(map[string]*list.Element)
	m.eviction.Init()
	return nil
}

// Len returns the number of entries, including stale ones.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops the janitor goroutine. Close is idempotent.
func (m *Memory[V]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

func (m *Memory[V]) janitor() {
	ticker := time.NewTicker(m.opts.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.purge()
		}
	}
}

// purge drops entries whose stale window has passed.
func (m *Memory[V]) purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	for elem := m.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if m.purgeable(elem.Value.(*entry[V]), now) {
			m.removeElement(elem)
		}
		elem = prev
	}
}

// purgeable reports whether e is past both its TTL and the stale window.
// Caller must hold the mutex.
func (m *Memory[V]) purgeable(e *entry[V], now time.Time) bool {
	if !e.expired(now) {
		return false
	}
	switch {
	case m.opts.staleRetention < 0:
		return false
	case m.opts.staleRetention == 0:
		return true
	default:
		return !now.Before(e.expiresAt.Add(m.opts.staleRetention))
	}
}

// Caller must hold the mutex.
func (m *Memory[V]) removeElement(elem *list.Element) {
	m.eviction.Remove(elem)
	e := elem.Value.(*entry[V])
	delete(m.items, e.key)

	if m.onEvict != nil {
		m.onEvict(e.key, e.value)
	}
}

var (
	_ Cache[any]      = (*Memory[any])(nil)
	_ StaleCache[any] = (*Memory[any])(nil)
)
