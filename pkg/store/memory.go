package store

import (
	"context"
	"sync"
)

// Memory is an in-memory Store. It backs tests and local development runs
// where a Redis server would be overkill.
type Memory struct {
	mu      sync.RWMutex
	scalars map[string]string
	lists   map[string][]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		scalars: map[string]string{},
		lists:   map[string][]string{},
	}
}

// LPush prepends values to the list at key
func (m *Memory) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// LPUSH semantics: each value in turn becomes the new head
	for _, v := range values {
		m.lists[key] = append([]string{v}, m.lists[key]...)
	}
	return nil
}

// LIndex returns the element at index, 0 being the newest
func (m *Memory) LIndex(_ context.Context, key string, index int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lists[key]
	if !ok || index < 0 || index >= int64(len(l)) {
		return "", ErrNotFound
	}
	return l[index], nil
}

// LRange returns elements start through stop inclusive
func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.lists[key]
	n := int64(len(l))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

// LTrim discards list elements outside start..stop
func (m *Memory) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	n := int64(len(l))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = l[start : stop+1]
	return nil
}

// Get returns the scalar value at key
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.scalars[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores a scalar value at key
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scalars[key] = value
	return nil
}

// Del removes the given keys, scalar or list
func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.scalars, k)
		delete(m.lists, k)
	}
	return nil
}

// Exists reports whether key is present as a scalar or a non-empty list
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.scalars[key]; ok {
		return true, nil
	}
	l, ok := m.lists[key]
	return ok && len(l) > 0, nil
}

// FlushAll drops everything
func (m *Memory) FlushAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scalars = map[string]string{}
	m.lists = map[string][]string{}
	return nil
}
