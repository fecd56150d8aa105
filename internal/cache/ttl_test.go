package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute, 10)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	c.Set("k", "v2")
	v, ok = c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Len())
}

func TestExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	c.Set("k", "v")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entries are reaped on read")
}

func TestEvictionAtCapacity(t *testing.T) {
	c := New(time.Minute, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Len())

	// The entry closest to expiry ("a") was evicted
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestDelete(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("k", "v")
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDefaultCapacity(t *testing.T) {
	c := New(time.Minute, 0)
	for i := 0; i < 300; i++ {
		c.Set(string(rune('a'+i%26))+string(rune('0'+i/26)), i)
	}
	assert.LessOrEqual(t, c.Len(), 256)
}
