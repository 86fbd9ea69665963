package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_EvictsOldest(t *testing.T) {
	l := NewLRU(2)
	l.Put("a", 1)
	l.Put("b", 2)
	evicted, didEvict := l.Put("c", 3)
	assert.True(t, didEvict)
	assert.Equal(t, "a", evicted)

	_, ok := l.Get("a")
	assert.False(t, ok)

	v, ok := l.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRU_TouchPreventsEviction(t *testing.T) {
	l := NewLRU(2)
	l.Put("a", 1)
	l.Put("b", 2)
	l.Get("a") // touch a, making b the LRU entry
	_, didEvict := l.Put("c", 3)
	assert.True(t, didEvict)

	_, ok := l.Get("a")
	assert.True(t, ok, "a should have survived the eviction")
	_, ok = l.Get("b")
	assert.False(t, ok, "b should have been evicted")
}
