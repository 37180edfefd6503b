package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Parallel()
	c := NewMemory()
	ctx := context.Background()

	key, value := "testCacheKey", "testCacheValue"
	v, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v, "retrieved values before adding it")

	require.NoError(t, c.Set(ctx, key, []byte(value)))
	v, _ = c.Get(ctx, key)
	assert.Equal(t, value, string(v))

	require.NoError(t, c.Del(ctx, key))
	v, _ = c.Get(ctx, key)
	assert.Nil(t, v)

	require.NoError(t, c.Set(WithTimeout(ctx, 50*time.Millisecond), key, []byte(value)))
	v, _ = c.Get(ctx, key)
	assert.Equal(t, value, string(v))

	time.Sleep(100 * time.Millisecond)

	v, _ = c.Get(ctx, key)
	assert.Nil(t, v, "not expired: %v", key)
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Timeout(context.Background()))
	assert.Equal(t, time.Minute, Timeout(WithTimeout(context.Background(), time.Minute)))
}

func TestCompress(t *testing.T) {
	t.Parallel()
	data := []byte(strings.Repeat(`{"a":[1,2,3]}`, 100))
	compressed, err := Compress(data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data))

	got, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
