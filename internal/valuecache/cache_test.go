package valuecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissesOnVersionMismatch(t *testing.T) {
	c := New[string](10)
	c.Put("a", 1, "hello")

	_, ok := c.Get("a", 2)
	assert.False(t, ok)

	v, ok := c.Get("a", 1)
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)
	c.Put("a", 1, 1)
	c.Put("b", 1, 2)
	c.Put("c", 1, 3) // evicts "a"

	_, ok := c.Get("a", 1)
	assert.False(t, ok)

	_, ok = c.Get("b", 1)
	assert.True(t, ok)
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := New[int](0)
	c.Put("a", 1, 1)
	_, ok := c.Get("a", 1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New[int](10)
	c.Put("a", 1, 1)
	c.Invalidate("a")
	_, ok := c.Get("a", 1)
	assert.False(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	c := New[int](10)
	c.Put("a", 1, 1)
	c.Put("b", 1, 2)
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache[int]
	c.Put("a", 1, 1)
	_, ok := c.Get("a", 1)
	assert.False(t, ok)
	c.Invalidate("a")
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}
