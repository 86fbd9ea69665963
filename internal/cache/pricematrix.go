// Package cache implements the L1/L2 price cache hierarchy:
// a fixed-slot L1 price matrix with atomic per-slot fields for hot-path
// reads, and an LRU-backed L2 cache fronting Redis with msgpack-encoded
// payloads for cold reads. The matrix's key registry is a mutex-guarded
// map, not a compare-and-swap structure.
package cache

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

func float64bits(f float64) uint64    { return math.Float64bits(f) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }

// maxSlots is the fixed capacity of the L1 price matrix.
const maxSlots = 10000

// priceSlot holds one pair's latest price/timestamp as independently
// atomic fields so readers never observe a torn write without taking a
// lock.
type priceSlot struct {
	price     atomic.Uint64 // math.Float64bits(price)
	timestamp atomic.Int64  // unix ms
}

// PriceMatrix is a fixed-size slot table keyed by
// "chain:dex:normalizedPair". Registration happens once per key under
// registryMu (first writer gets the slot); after that, slot values are
// written with atomic stores and read with atomic loads. Update and Read
// both take registryMu briefly to look up the key's slot index, so the
// key lookup itself is not lock-free.
type PriceMatrix struct {
	registryMu sync.Mutex
	index      map[string]int // key -> slot index, guarded by registryMu
	nextSlot   int32           // guarded by registryMu

	slots [maxSlots]priceSlot
}

// NewPriceMatrix constructs an empty matrix.
func NewPriceMatrix() *PriceMatrix {
	return &PriceMatrix{
		index: make(map[string]int, maxSlots),
	}
}

// ErrSlotsExhausted is returned by Update when all slots are registered
// and key is not among them.
var ErrSlotsExhausted = fmt.Errorf("cache: price matrix slots exhausted (max %d)", maxSlots)

// Update writes price/timestamp for key, registering a new slot on first
// use. Returns ErrSlotsExhausted if key is new and no slots remain.
func (m *PriceMatrix) Update(key string, price float64, timestampMs int64) error {
	idx, err := m.slotFor(key)
	if err != nil {
		return err
	}
	m.slots[idx].price.Store(float64bits(price))
	m.slots[idx].timestamp.Store(timestampMs)
	return nil
}

// Read returns the last written price/timestamp for key, or (0, 0,
// false) if key was never registered.
func (m *PriceMatrix) Read(key string) (price float64, timestampMs int64, ok bool) {
	m.registryMu.Lock()
	idx, exists := m.index[key]
	m.registryMu.Unlock()
	if !exists {
		return 0, 0, false
	}
	return float64frombits(m.slots[idx].price.Load()), m.slots[idx].timestamp.Load(), true
}

// slotFor returns the registered slot index for key, registering a new
// one under the registry lock if key is unseen. The registry lock is
// only ever held for the index lookup/insert, never across the
// subsequent atomic read/write.
func (m *PriceMatrix) slotFor(key string) (int, error) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	if idx, ok := m.index[key]; ok {
		return idx, nil
	}
	if int(m.nextSlot) >= maxSlots {
		return 0, ErrSlotsExhausted
	}
	idx := int(m.nextSlot)
	m.nextSlot++
	m.index[key] = idx
	return idx, nil
}

// Len returns the number of registered slots.
func (m *PriceMatrix) Len() int {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	return len(m.index)
}
