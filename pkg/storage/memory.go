package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryKV is a bounded in-process store. The least recently used key is
// evicted once MaxKeys is reached, so it is meant for tests and single-process
// deployments with a short retention window.
type MemoryKV struct {
	cache *lru.Cache[string, []byte]
}

// NewMemoryKV creates a memory store holding at most maxKeys entries
func NewMemoryKV(maxKeys int) (*MemoryKV, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultConfig().MemoryMaxKeys
	}
	cache, err := lru.New[string, []byte](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &MemoryKV{cache: cache}, nil
}

// Get implements KV.Get
func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

// Put implements KV.Put
func (m *MemoryKV) Put(ctx context.Context, key string, value []byte) error {
	m.cache.Add(key, cloneBytes(value))
	return nil
}

// Delete implements KV.Delete
func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Len returns the number of stored keys
func (m *MemoryKV) Len() int {
	return m.cache.Len()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
