package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	c := NewCache(10, time.Minute)

	_, ok := c.Get("heatmap/individual/7")
	assert.False(t, ok)

	c.Put("heatmap/individual/7", []int{1, 2, 3})
	v, ok := c.Get("heatmap/individual/7")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, v)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestCache_VersionBumpInvalidates(t *testing.T) {
	t.Parallel()

	c := NewCache(10, time.Minute)
	c.Put("clusters/12", "cached")

	_, ok := c.Get("clusters/12")
	require.True(t, ok)

	c.Bump()
	_, ok = c.Get("clusters/12")
	assert.False(t, ok, "entries from before the bump must not be served")

	// A value stored after the bump is served again.
	c.Put("clusters/12", "recomputed")
	v, ok := c.Get("clusters/12")
	require.True(t, ok)
	assert.Equal(t, "recomputed", v)
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := NewCache(10, time.Millisecond)
	c.Put("k", 1)

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_LRUEviction(t *testing.T) {
	t.Parallel()

	c := NewCache(2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_Key(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "clusters/12/40.7/-74", Key("clusters", 12, 40.7, -74.0))
	assert.Equal(t, "alerts", Key("alerts"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewCache(50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := Key("view", g, i%10)
				c.Put(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.Bump()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Entries, 50)
}

func TestCache_KeyCollisionSafety(t *testing.T) {
	t.Parallel()

	// Distinct parameter lists must produce distinct keys.
	assert.NotEqual(t, Key("v", 1, 23), Key("v", 12, 3))
}
