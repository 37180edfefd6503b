package bolt

import (
	"context"
	"errors"

	"github.com/shiroyk/runjs/cache"
)

// Cache is an implementation of Cache that stores bytes in bolt.DB.
type Cache struct {
	db *DB
}

// Get returns the value, nil if not existing or expired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	value, err := c.db.Get([]byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	return value, err
}

// Set saves []byte to the cache with key, expiring after the context
// cache timeout.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	return c.db.PutWithTimeout([]byte(key), value, cache.Timeout(ctx))
}

// Del removes key from the cache.
func (c *Cache) Del(_ context.Context, key string) error {
	return c.db.Delete([]byte(key))
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// NewCache returns a new Cache that will store items in bolt.DB.
func NewCache(opt cache.Options) (*Cache, error) {
	db, err := NewDB(opt.Path, "cache", 0)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}
