package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is a process-local store with per-entry expiry
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates a memory store
func NewMemory(defaultTTL, cleanupInterval time.Duration) *Memory {
	return &Memory{cache: gocache.New(defaultTTL, cleanupInterval)}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	val, found := m.cache.Get(key)
	if !found {
		return nil, false
	}
	return append([]byte(nil), val.([]byte)...), true
}

// Set stores a copy of value. ttl 0 uses the default TTL.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *Memory) Clear() error {
	m.cache.Flush()
	return nil
}

// Len returns the number of entries, expired ones included until cleanup
func (m *Memory) Len() int {
	return m.cache.ItemCount()
}
