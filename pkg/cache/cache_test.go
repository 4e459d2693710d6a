package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// =============================================================================
// MemoryCache
// =============================================================================

func TestNewMemoryCache(t *testing.T) {
	t.Run("zero maxSize uses default", func(t *testing.T) {
		c := NewMemoryCache(0, time.Minute)
		if c.maxSize != 1000 {
			t.Errorf("maxSize = %d, want 1000 (default)", c.maxSize)
		}
	})

	t.Run("zero TTL is valid (no expiration)", func(t *testing.T) {
		c := NewMemoryCache(10, 0)
		if c.ttl != 0 {
			t.Errorf("ttl = %v, want 0", c.ttl)
		}
	})
}

func TestMemoryCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 0)

	_, ok, err := c.Get(ctx, "job", "ALL")
	require.NoError(t, err)
	assert.False(t, ok)

	items := []any{element.NewEntity("person", "alice"), "x"}
	require.NoError(t, c.Put(ctx, "job", "ALL", items))

	got, ok, err := c.Get(ctx, "job", "ALL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, items, got)

	// Stored lists are copies.
	items[1] = "changed"
	got[0] = nil
	again, _, _ := c.Get(ctx, "job", "ALL")
	assert.Equal(t, "x", again[1])
	assert.NotNil(t, again[0])

	_, ok, _ = c.Get(ctx, "other-job", "ALL")
	assert.False(t, ok, "exports are scoped by job")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestMemoryCache_EmptyExportIsAHit(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 0)
	require.NoError(t, c.Put(ctx, "job", "k", nil))

	got, ok, err := c.Get(ctx, "job", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, 0)
	require.NoError(t, c.Put(ctx, "j", "a", []any{1}))
	require.NoError(t, c.Put(ctx, "j", "b", []any{2}))

	// Touch a so b is the oldest.
	_, ok, _ := c.Get(ctx, "j", "a")
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, "j", "c", []any{3}))
	assert.Equal(t, 2, c.Len())

	_, ok, _ = c.Get(ctx, "j", "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "j", "a")
	assert.True(t, ok)
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "j", "k", []any{1}))
	now = now.Add(30 * time.Second)
	_, ok, _ := c.Get(ctx, "j", "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "j", "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 0)
	require.NoError(t, c.Put(ctx, "j", "a", []any{1}))
	require.NoError(t, c.Put(ctx, "j", "b", []any{2}))

	c.Remove("j", "a")
	assert.Equal(t, 1, c.Len())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(50, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = c.Put(ctx, "j", key, []any{i})
			_, _, _ = c.Get(ctx, "j", key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

// =============================================================================
// Encoding
// =============================================================================

func TestEncodeDecodeItems(t *testing.T) {
	entity := element.NewEntity("person", "alice").WithProperty("age", 30)
	edge := element.NewEdge("knows", "alice", "bob", true)
	items := []any{entity, edge, element.EntitySeed{Vertex: "carol"}, "text", 7, map[string]any{"k": 1.5}}

	data, err := EncodeItems(items)
	require.NoError(t, err)
	got, err := DecodeItems(data)
	require.NoError(t, err)
	require.Len(t, got, 6)

	assert.True(t, entity.Equal(got[0].(element.Element)))
	assert.True(t, edge.Equal(got[1].(element.Element)))
	assert.Equal(t, element.EntitySeed{Vertex: "carol"}, got[2])
	assert.Equal(t, "text", got[3])
	assert.Equal(t, int64(7), got[4])
	assert.Equal(t, map[string]any{"k": 1.5}, got[5])
}

func TestDecodeItems_Invalid(t *testing.T) {
	_, err := DecodeItems([]byte(`{"not":"a list"}`))
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = DecodeItems([]byte(`[{"class":"Entity","vertex":`))
	assert.ErrorIs(t, err, ErrEncoding)
}

// =============================================================================
// RedisCache
// =============================================================================

func setupRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisOptions{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
		TTL: ttl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, 0)

	_, ok, err := c.Get(ctx, "job", "ALL")
	require.NoError(t, err)
	assert.False(t, ok)

	entity := element.NewEntity("person", "alice").WithProperty("count", 3)
	require.NoError(t, c.Put(ctx, "job", "ALL", []any{entity}))
	assert.True(t, mr.Exists("gaffer:export:job:ALL"))

	got, ok, err := c.Get(ctx, "job", "ALL")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, entity.Equal(got[0].(element.Element)))
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, time.Minute)

	require.NoError(t, c.Put(ctx, "job", "k", []any{"v"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "job", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	ctx := context.Background()
	c, mr := setupRedisCache(t, 0)
	require.NoError(t, mr.Set("gaffer:export:job:k", "not json"))

	_, _, err := c.Get(ctx, "job", "k")
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(RedisOptions{URL: "not-a-url://"})
	assert.Error(t, err)
}
