package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPair struct {
	PairAddress string
	Decimals0   uint8
	Decimals1   uint8
}

func newTestHierarchicalCache(t *testing.T) *HierarchicalCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewHierarchicalCache(rdb, 2, time.Minute)
}

func TestHierarchicalCache_SetThenGetHitsLRU(t *testing.T) {
	c := newTestHierarchicalCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "pair:1", cachedPair{PairAddress: "0xabc", Decimals0: 18, Decimals1: 6}))

	var got cachedPair
	require.NoError(t, c.Get(ctx, "pair:1", &got))
	assert.Equal(t, "0xabc", got.PairAddress)
}

func TestHierarchicalCache_FallsBackToRedisOnLRUMiss(t *testing.T) {
	c := newTestHierarchicalCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "pair:1", cachedPair{PairAddress: "0xabc"}))

	// Force it out of the in-process LRU without touching Redis.
	c.mu.Lock()
	delete(c.lru, "pair:1")
	c.order = nil
	c.mu.Unlock()

	var got cachedPair
	require.NoError(t, c.Get(ctx, "pair:1", &got))
	assert.Equal(t, "0xabc", got.PairAddress)
}

func TestHierarchicalCache_MissReturnsErrMiss(t *testing.T) {
	c := newTestHierarchicalCache(t)
	var got cachedPair
	err := c.Get(context.Background(), "nope", &got)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestHierarchicalCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newTestHierarchicalCache(t) // capacity 2
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", cachedPair{PairAddress: "a"}))
	require.NoError(t, c.Set(ctx, "b", cachedPair{PairAddress: "b"}))
	require.NoError(t, c.Set(ctx, "c", cachedPair{PairAddress: "c"}))

	c.mu.Lock()
	_, aStillInLRU := c.lru["a"]
	c.mu.Unlock()
	assert.False(t, aStillInLRU, "oldest entry should have been evicted from the in-process LRU")
}
