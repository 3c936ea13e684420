// Package settings provides the key/value settings store consumed by the index and
// repositories. Keys are hierarchical, separated by Delimiter, and values are strings.
package settings

import (
	"slices"
	"strings"
	"sync"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// Delimiter separates the segments of a settings key.
const Delimiter = "/"

// Store is a flat string mapping addressed by delimited keys.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Keys() []string
}

// MemoryStore is a Store backed by a map. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns a store seeded with a copy of values.
func NewMemoryStore(values map[string]string) *MemoryStore {
	m := &MemoryStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Set(key, value string) error {
	if key == "" {
		return errutils.Wrap(errutils.ErrInvalidValue, "settings key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys returns all keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GetDefault returns the value of key or def when it is not set.
func GetDefault(s Store, key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// KeysRoot returns the distinct first segments of all keys.
func KeysRoot(s Store) []string {
	return firstSegments(s.Keys(), "")
}

func firstSegments(keys []string, prefix string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		head, _, _ := strings.Cut(k[len(prefix):], Delimiter)
		if head == "" {
			continue
		}
		if _, ok := seen[head]; ok {
			continue
		}
		seen[head] = struct{}{}
		out = append(out, head)
	}
	slices.Sort(out)
	return out
}
