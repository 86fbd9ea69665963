package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceMatrix_UpdateAndRead(t *testing.T) {
	m := NewPriceMatrix()
	require.NoError(t, m.Update("ethereum:uniswap_v2:a:b", 1234.5, 1000))

	price, ts, ok := m.Read("ethereum:uniswap_v2:a:b")
	assert.True(t, ok)
	assert.Equal(t, 1234.5, price)
	assert.Equal(t, int64(1000), ts)
}

func TestPriceMatrix_ReadUnknownKey(t *testing.T) {
	m := NewPriceMatrix()
	_, _, ok := m.Read("nope")
	assert.False(t, ok)
}

func TestPriceMatrix_ReusesSlotOnRepeatedKey(t *testing.T) {
	m := NewPriceMatrix()
	require.NoError(t, m.Update("k", 1.0, 1))
	require.NoError(t, m.Update("k", 2.0, 2))
	assert.Equal(t, 1, m.Len())

	price, ts, ok := m.Read("k")
	assert.True(t, ok)
	assert.Equal(t, 2.0, price)
	assert.Equal(t, int64(2), ts)
}

func TestPriceMatrix_ExhaustionReturnsError(t *testing.T) {
	m := NewPriceMatrix()
	m.nextSlot = maxSlots
	err := m.Update("overflow-key", 1.0, 1)
	assert.ErrorIs(t, err, ErrSlotsExhausted)
}
