package cache

import (
	"bytes"
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps artifacts in process. Expired entries are evicted lazily on
// read and by a janitor every cleanupInterval.
type Memory struct {
	items *gocache.Cache
}

func NewMemory(defaultTTL, cleanupInterval time.Duration) *Memory {
	return &Memory{items: gocache.New(defaultTTL, cleanupInterval)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := m.items.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		m.items.Delete(key)
		return nil, false, nil
	}
	return bytes.Clone(b), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.items.Set(key, bytes.Clone(value), ttl)
	return nil
}

// Len reports the number of stored items, including expired ones not yet swept.
func (m *Memory) Len() int { return m.items.ItemCount() }
