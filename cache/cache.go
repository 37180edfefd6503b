// Package cache stores run results by key.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cast"
)

const (
	// Memory the in-memory cache type
	Memory = "memory"
	// Bolt the bbolt file cache type
	Bolt = "bolt"
)

// Options the cache configuration
type Options struct {
	// Type is "memory", "bolt" or empty to disable caching.
	Type string `yaml:"type"`
	// Path is the directory of the bolt database.
	Path string `yaml:"path"`
	// Timeout is the lifetime of an entry, zero keeps entries forever.
	Timeout time.Duration `yaml:"timeout"`
}

// A Cache interface is used to store bytes.
// Get returns nil without error for a missing or expired key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

type timeoutKey struct{}

// WithTimeout returns the context with the cache timeout.
func WithTimeout(ctx context.Context, timeout time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, timeout)
}

// Timeout returns the context cache timeout values.
func Timeout(ctx context.Context) time.Duration {
	return cast.ToDuration(ctx.Value(timeoutKey{}))
}

// memoryCache is an implementation of Cache that stores bytes in in-memory.
type memoryCache struct {
	sync.Mutex
	items   map[string][]byte
	timeout map[string]int64
}

// Get returns the value, nil if not existing or expired.
func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.Lock()
	defer c.Unlock()
	if ddl, exist := c.timeout[key]; exist {
		if time.Now().UnixNano() > ddl {
			delete(c.items, key)
			delete(c.timeout, key)
			return nil, nil
		}
	}
	return c.items[key], nil
}

// Set saves []byte to the cache with key
func (c *memoryCache) Set(ctx context.Context, key string, value []byte) error {
	c.Lock()
	defer c.Unlock()
	c.items[key] = value
	if timeout := Timeout(ctx); timeout > 0 {
		c.timeout[key] = time.Now().Add(timeout).UnixNano()
	} else {
		delete(c.timeout, key)
	}
	return nil
}

// Del removes key from the cache
func (c *memoryCache) Del(_ context.Context, key string) error {
	c.Lock()
	defer c.Unlock()
	delete(c.items, key)
	delete(c.timeout, key)
	return nil
}

// NewMemory returns a new Cache that will store items in in-memory.
func NewMemory() Cache {
	return &memoryCache{
		items:   make(map[string][]byte),
		timeout: make(map[string]int64),
	}
}
