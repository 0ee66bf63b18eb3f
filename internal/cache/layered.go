package cache

import (
	"errors"
	"time"
)

// Layered reads through a fast store to a slow one and writes to both
type Layered struct {
	memory Store
	disk   Store
}

// NewLayered stacks memory over disk
func NewLayered(memory, disk Store) *Layered {
	return &Layered{memory: memory, disk: disk}
}

// Get checks memory first and promotes disk hits
func (c *Layered) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}
	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, 0)
		return val, true
	}
	return nil, false
}

func (c *Layered) Set(key string, value []byte, ttl time.Duration) error {
	return errors.Join(c.memory.Set(key, value, ttl), c.disk.Set(key, value, ttl))
}

func (c *Layered) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

func (c *Layered) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}
