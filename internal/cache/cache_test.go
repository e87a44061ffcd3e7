package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bricklore/brickengine/internal/catalog"
)

func TestMemoryClientRoundTrip(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClientExpiry(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClientDeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "q:1:a", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "q:1:b", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "q:2:c", []byte("c"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "q:1:"))
	_, err := c.Get(ctx, "q:1:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "q:2:c")
	require.NoError(t, err)
}

func TestMemoryClientEviction(t *testing.T) {
	c := NewMemoryClient(2)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("b"), 2*time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("c"), 3*time.Minute))

	// "a" had the earliest expiry and is evicted first.
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "b")
	require.NoError(t, err)
}

func TestQueryKey(t *testing.T) {
	year := 2024
	filter := &catalog.Filter{YearMin: &year}

	k1 := QueryKey(1, "expensive sets", filter)
	k2 := QueryKey(1, "expensive sets", filter)
	assert.Equal(t, k1, k2)

	// Generation, query text and filter all participate in the key.
	assert.NotEqual(t, k1, QueryKey(2, "expensive sets", filter))
	assert.NotEqual(t, k1, QueryKey(1, "cheap sets", filter))
	assert.NotEqual(t, k1, QueryKey(1, "expensive sets", nil))
}
