package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	contentType string
	data        []byte
}

// Memory keeps objects in process.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

// NewMemory returns an empty Memory. URL links point below baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{objects: make(map[string]memoryObject), baseURL: baseURL}
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader, contentType string, rules ...Rule) (*Object, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	data, contentType, err := prepare(r, contentType, rules)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{contentType: contentType, data: data}
	m.mu.Unlock()

	return &Object{Key: key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) URL(_ context.Context, key, filename string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}

	q := url.Values{}
	q.Set("expires", time.Now().Add(expiry).UTC().Format(time.RFC3339))
	if filename != "" {
		q.Set("filename", filename)
	}
	return m.baseURL + "/" + key + "?" + q.Encode(), nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ Storage = (*Memory)(nil)
