package bolt

import (
	"context"
	"testing"
	"time"

	"github.com/shiroyk/runjs/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Parallel()
	c, err := NewCache(cache.Options{Path: t.TempDir()})
	require.NoError(t, err)
	defer func() { assert.NoError(t, c.Close()) }()
	ctx := context.Background()

	key, value := "testCacheKey", "testCacheValue"
	v, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v, "retrieved value before adding it")

	require.NoError(t, c.Set(ctx, key, []byte(value)))
	v, _ = c.Get(ctx, key)
	assert.Equal(t, value, string(v))

	require.NoError(t, c.Del(ctx, key))
	v, _ = c.Get(ctx, key)
	assert.Nil(t, v, "delete failed")

	require.NoError(t, c.Set(cache.WithTimeout(ctx, 100*time.Millisecond), key, []byte(value)))
	v, _ = c.Get(ctx, key)
	assert.Equal(t, value, string(v))

	time.Sleep(200 * time.Millisecond)

	v, _ = c.Get(ctx, key)
	assert.Nil(t, v, "not expired: %v", key)
}
