package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/destination-bridge/internal/cache"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()

	c, err := cache.NewMemory[string, string](cache.MemoryOptions{MaxSize: 10})
	require.NoError(t, err)
	defer c.Close()

	_, found, err := c.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "key", "value"))

	v, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value", v)

	// a second write replaces the value
	require.NoError(t, c.Set(ctx, "key", "replaced"))
	v, _, _ = c.Get(ctx, "key")
	assert.Equal(t, "replaced", v)
}

func TestMemory_Invalidate(t *testing.T) {
	ctx := context.Background()

	c, err := cache.NewMemory[string, int](cache.MemoryOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "key", 42))
	require.NoError(t, c.Invalidate(ctx, "key"))

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)

	// invalidating an absent key is not an error
	require.NoError(t, c.Invalidate(ctx, "never-set"))
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()

	c, err := cache.NewMemory[string, string](cache.MemoryOptions{TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "key", "value"))

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found, err = c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found, "entry must expire after its TTL")
}

func TestMemory_StructKeys(t *testing.T) {
	type key struct {
		tenant string
		name   string
	}

	ctx := context.Background()

	c, err := cache.NewMemory[key, string](cache.MemoryOptions{MaxSize: 10})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, key{"tenant-a", "erp"}, "a"))
	require.NoError(t, c.Set(ctx, key{"tenant-b", "erp"}, "b"))

	v, found, err := c.Get(ctx, key{"tenant-a", "erp"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", v)
}
