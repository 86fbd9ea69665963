// Package execution implements the opportunity-to-transaction pipeline
// and its supporting services: nonce management, MEV
// submission, simulation, strategy routing, and per-chain circuit
// breakers, generalized from a single DEX's ecdsa-signing/gas-estimation/
// result-recording swap call into a pluggable multi-strategy pipeline.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PendingNonce tracks one allocated-but-unconfirmed nonce.
type PendingNonce struct {
	Nonce     uint64
	AllocatedAt time.Time
	Deadline    time.Time
}

// ChainClient supplies the on-chain transaction count for nonce sync.
type ChainClient interface {
	TransactionCount(ctx context.Context, chainID, wallet string) (uint64, error)
}

// walletState is the per-(chain,wallet) nonce book-keeping state,
// protected by its own mutex.
type walletState struct {
	mu             sync.Mutex
	pool           []uint64
	pendingNonce   uint64
	lastSyncAt     time.Time
	pending        map[uint64]PendingNonce
}

// NonceManagerConfig carries the defaults.
type NonceManagerConfig struct {
	PoolSize           int
	ReplenishThreshold int
	SyncInterval       time.Duration
	PendingTimeout     time.Duration
}

// NonceManager hands out unique, monotonically-assigned nonces per
// (chain, wallet), pre-allocating a small pool for the fast path and
// falling back to an on-chain sync when the pool is empty or stale.
type NonceManager struct {
	cfg    NonceManagerConfig
	client ChainClient

	mu     sync.Mutex
	states map[string]*walletState
}

// NewNonceManager applies default bounds for zero-valued config fields:
// poolSize=5, replenishThreshold=2, syncInterval=30s, pendingTimeout=5m.
func NewNonceManager(cfg NonceManagerConfig, client ChainClient) *NonceManager {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 5
	}
	if cfg.ReplenishThreshold <= 0 {
		cfg.ReplenishThreshold = 2
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = 5 * time.Minute
	}
	return &NonceManager{cfg: cfg, client: client, states: make(map[string]*walletState)}
}

func walletKey(chainID, wallet string) string {
	return chainID + ":" + wallet
}

func (m *NonceManager) stateFor(chainID, wallet string) *walletState {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := walletKey(chainID, wallet)
	s, ok := m.states[key]
	if !ok {
		s = &walletState{pending: make(map[uint64]PendingNonce)}
		m.states[key] = s
	}
	return s
}

// GetNextNonce returns the next usable nonce for (chainID, wallet),
// registering it as pending.
func (m *NonceManager) GetNextNonce(ctx context.Context, chainID, wallet string) (uint64, error) {
	state := m.stateFor(chainID, wallet)

	state.mu.Lock()
	defer state.mu.Unlock()

	if len(state.pool) > 0 {
		nonce := state.pool[0]
		state.pool = state.pool[1:]
		m.registerPending(state, nonce)
		if len(state.pool) <= m.cfg.ReplenishThreshold {
			go m.replenish(chainID, wallet)
		}
		return nonce, nil
	}

	if m.client != nil && time.Since(state.lastSyncAt) > m.cfg.SyncInterval {
		count, err := m.client.TransactionCount(ctx, chainID, wallet)
		if err != nil {
			return 0, fmt.Errorf("sync nonce for %s/%s: %w", chainID, wallet, err)
		}
		state.pendingNonce = count
		state.lastSyncAt = time.Now()
	}

	nonce := state.pendingNonce
	state.pendingNonce++
	m.registerPending(state, nonce)
	return nonce, nil
}

// registerPending must be called with state.mu held.
func (m *NonceManager) registerPending(state *walletState, nonce uint64) {
	now := time.Now()
	state.pending[nonce] = PendingNonce{Nonce: nonce, AllocatedAt: now, Deadline: now.Add(m.cfg.PendingTimeout)}
}

// replenish fetches fresh nonces from the chain to refill the pool in
// the background once it has drained to the replenish threshold.
func (m *NonceManager) replenish(chainID, wallet string) {
	if m.client == nil {
		return
	}
	state := m.stateFor(chainID, wallet)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.client.TransactionCount(ctx, chainID, wallet)
	if err != nil {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	next := count + uint64(len(state.pool))
	for len(state.pool) < m.cfg.PoolSize {
		state.pool = append(state.pool, next)
		next++
	}
}

// OnConfirmed removes nonce from the pending set.
func (m *NonceManager) OnConfirmed(chainID, wallet string, nonce uint64) {
	state := m.stateFor(chainID, wallet)
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.pending, nonce)
}

// OnFailed handles a failed submission. If the transaction never
// reached the mempool, the nonce is returned to the pool for reuse;
// otherwise it is considered burned and only a future resync recovers
// it.
func (m *NonceManager) OnFailed(chainID, wallet string, nonce uint64, reachedMempool bool) {
	state := m.stateFor(chainID, wallet)
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.pending, nonce)
	if !reachedMempool {
		state.pool = append(state.pool, nonce)
	}
}

// SweepExpired evicts pending entries past their deadline across all
// wallets, returning how many were evicted.
func (m *NonceManager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	states := make([]*walletState, 0, len(m.states))
	for _, s := range m.states {
		states = append(states, s)
	}
	m.mu.Unlock()

	evicted := 0
	for _, state := range states {
		state.mu.Lock()
		for nonce, entry := range state.pending {
			if now.After(entry.Deadline) {
				delete(state.pending, nonce)
				evicted++
			}
		}
		state.mu.Unlock()
	}
	return evicted
}

// PendingCount returns the number of unconfirmed nonces for (chain, wallet).
func (m *NonceManager) PendingCount(chainID, wallet string) int {
	state := m.stateFor(chainID, wallet)
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.pending)
}
