package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetAfterPutWithinTTL(t *testing.T) {
	c := New[string, int](100, 2*time.Minute)
	c.Put("k", 1)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New[string, int](100, time.Minute)
	fake := time.Now()
	c.nowFunc = func() time.Time { return fake }
	c.Put("k", 1)

	fake = fake.Add(2 * time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // touch a, making b the LRU entry
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_DeleteRemovesEntry(t *testing.T) {
	c := New[string, int](10, 0)
	c.Put("k", 1)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
