// Package cache memoises expensive backend verdicts across runs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ppiankov/lemmata/internal/config"
)

// Store is a byte-oriented cache
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from a namespace and exact text
func Key(namespace, text string) string {
	hash := sha256.Sum256([]byte(text))
	return "lemmata:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}

// New builds the store described by cfg: nil when disabled, memory only
// without a directory, memory over disk otherwise.
func New(cfg config.CacheConfig) Store {
	if !cfg.Enabled {
		return nil
	}
	mem := NewMemory(cfg.TTL(), 10*time.Minute)
	if cfg.Dir == "" {
		return mem
	}
	return NewLayered(mem, NewDisk(cfg.Dir, cfg.TTL()))
}

// Typed stores JSON-encoded values of one type under a namespace. A nil store
// turns every operation into a miss.
type Typed[T any] struct {
	store     Store
	namespace string
	ttl       time.Duration
}

// NewTyped creates a typed view over store
func NewTyped[T any](store Store, namespace string, ttl time.Duration) *Typed[T] {
	return &Typed[T]{store: store, namespace: namespace, ttl: ttl}
}

// Get returns the value stored for text
func (t *Typed[T]) Get(text string) (T, bool) {
	var zero T
	if t == nil || t.store == nil {
		return zero, false
	}
	data, ok := t.store.Get(Key(t.namespace, text))
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false
	}
	return v, true
}

// Put stores v for text
func (t *Typed[T]) Put(text string, v T) error {
	if t == nil || t.store == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.store.Set(Key(t.namespace, text), data, t.ttl)
}
