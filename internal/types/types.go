// Package types holds the core data model shared by ingestion, detection,
// and execution: TokenPair, PriceUpdate, SwapEvent, Opportunity, and the
// process-local state records (NonceState, CircuitBreakerState,
// DrawdownState), generalized from a single-DEX parameter model to the
// multi-chain, multi-DEX model this core needs.
package types

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPair is the stable identity of a trading pair on a specific DEX on
// a specific chain. (chainID, pairAddress) is unique and immutable after
// construction; reserves are written only by that chain's ingestion
// instance.
type TokenPair struct {
	ChainID    string
	DexName    string
	Address    common.Address
	Token0     common.Address
	Token1     common.Address
	Decimals0  uint8
	Decimals1  uint8

	mu              sync.RWMutex
	reserve0        *big.Int
	reserve1        *big.Int
	lastUpdateBlock uint64
	lastUpdateTs    int64
}

// NewTokenPair constructs a TokenPair with zero reserves.
func NewTokenPair(chainID, dexName string, address, token0, token1 common.Address, decimals0, decimals1 uint8) *TokenPair {
	return &TokenPair{
		ChainID:   chainID,
		DexName:   dexName,
		Address:   address,
		Token0:    token0,
		Token1:    token1,
		Decimals0: decimals0,
		Decimals1: decimals1,
		reserve0:  big.NewInt(0),
		reserve1:  big.NewInt(0),
	}
}

// NormalizedTokenKey returns the lowercased, lexicographically-sorted
// "token0:token1" key used by ChainDetector.pairsByTokens.
func (p *TokenPair) NormalizedTokenKey() string {
	return NormalizeTokenKey(p.Token0, p.Token1)
}

// NormalizeTokenKey sorts and lowercases two token addresses into a
// stable key, independent of which side of the pair they occupy.
func NormalizeTokenKey(a, b common.Address) string {
	ah, bh := strings.ToLower(a.Hex()), strings.ToLower(b.Hex())
	if ah > bh {
		ah, bh = bh, ah
	}
	return fmt.Sprintf("%s:%s", ah, bh)
}

// NormalizeSymbolKey sorts and lowercases two canonical token symbols
// (e.g. "WETH", "USDC") into a stable key. Unlike NormalizeTokenKey, this
// is chain-independent: the same logical asset has a different contract
// address on every chain, so cross-chain mispricing comparisons must key
// on symbol identity rather than address.
func NormalizeSymbolKey(a, b string) string {
	al, bl := strings.ToLower(a), strings.ToLower(b)
	if al > bl {
		al, bl = bl, al
	}
	return fmt.Sprintf("%s:%s", al, bl)
}

// UpdateReserves is the ingestion-layer-only write path. Only the owning
// chain's ingestion instance calls this.
func (p *TokenPair) UpdateReserves(reserve0, reserve1 *big.Int, block uint64, tsMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserve0 = reserve0
	p.reserve1 = reserve1
	p.lastUpdateBlock = block
	p.lastUpdateTs = tsMs
}

// Snapshot returns a read-only copy of (reserve0, reserve1, block, ts),
// the detector's "snapshot-on-read" pattern:
// detection captures local copies once and never races on a
// partially-written big.Int.
func (p *TokenPair) Snapshot() (reserve0, reserve1 *big.Int, block uint64, tsMs int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1), p.lastUpdateBlock, p.lastUpdateTs
}

// PriceUpdate is an observed reserve change, published once to the event
// bus and consumed once per consumer group.
type PriceUpdate struct {
	ChainID     string  `json:"chainId"`
	DexName     string  `json:"dexName"`
	PairAddress string  `json:"pairAddress"`
	Token0      string  `json:"token0"` // pair's token0 contract address, from static topology
	Token1      string  `json:"token1"` // pair's token1 contract address, from static topology
	Symbol0     string  `json:"symbol0"` // canonical, chain-independent symbol (e.g. "weth")
	Symbol1     string  `json:"symbol1"`
	Reserve0    string  `json:"reserve0"` // big.Int decimal string (wire-safe)
	Reserve1    string  `json:"reserve1"`
	MidPrice    float64 `json:"midPrice"`
	BlockNumber uint64  `json:"blockNumber"`
	TimestampMs int64   `json:"timestampMs"`
	Sequence    uint64  `json:"sequence"`
}

// NormalizedPairKey matches the "chain:dex:normalizedPair" key used by
// the L1 price matrix registry.
func (p PriceUpdate) NormalizedPairKey(normalizedPair string) string {
	return fmt.Sprintf("%s:%s:%s", p.ChainID, p.DexName, normalizedPair)
}

// SwapEvent is an individual trade, filtered before publishing.
type SwapEvent struct {
	ChainID     string   `json:"chainId"`
	DexName     string   `json:"dexName"`
	PairAddress string   `json:"pairAddress"`
	Sender      string   `json:"sender"`
	Amount0In   *big.Int `json:"amount0In"`
	Amount1In   *big.Int `json:"amount1In"`
	Amount0Out  *big.Int `json:"amount0Out"`
	Amount1Out  *big.Int `json:"amount1Out"`
	ValueUsd    float64  `json:"valueUsd"`
	TxHash      string   `json:"txHash"`
	LogIndex    uint     `json:"logIndex"`
	BlockNumber uint64   `json:"blockNumber"`
	TimestampMs int64    `json:"timestampMs"`
}

// Fingerprint returns the edge-filter dedupe key (pairAddress, txHash,
// logIndex) level 1.
func (s SwapEvent) Fingerprint() string {
	return fmt.Sprintf("%s:%s:%d", s.PairAddress, s.TxHash, s.LogIndex)
}

// WhaleAlert republishes a SwapEvent whose ValueUsd crossed the whale
// threshold.
type WhaleAlert struct {
	SwapEvent
	Threshold float64 `json:"threshold"`
}

// OpportunityType enumerates the arbitrage shapes the detectors and
// execution engine can produce/route.
type OpportunityType string

const (
	OpportunityIntraDex    OpportunityType = "intra-dex"
	OpportunityCrossDex    OpportunityType = "cross-dex"
	OpportunityCrossChain  OpportunityType = "cross-chain"
	OpportunityFlashLoan   OpportunityType = "flash-loan"
	OpportunityStatistical OpportunityType = "statistical"
	OpportunityTriangular  OpportunityType = "triangular"
	OpportunityMultiLeg    OpportunityType = "multi-leg"
)

// SwapStep is one leg of an Opportunity's path, and also the calldata
// element shape consumed by the flash-loan executor.
type SwapStep struct {
	Router    string   `json:"router"`
	TokenIn   string   `json:"tokenIn"`
	TokenOut  string   `json:"tokenOut"`
	AmountIn  *big.Int `json:"amountIn"` // nil/0 means "chained from previous leg's output"
	Data      []byte   `json:"data"`
	ChainID   string   `json:"chainId"`
	DexName   string   `json:"dexName"`
}

// Opportunity is a detected, potentially-profitable arbitrage path.
// Invariants: ExpiresAtMs > DetectedAtMs; 0 <= Confidence <= 1.
type Opportunity struct {
	ID                 string          `json:"id"`
	Type               OpportunityType `json:"type"`
	BuyChain           string          `json:"buyChain"`
	SellChain          string          `json:"sellChain"`
	BuyDex             string          `json:"buyDex"`
	SellDex            string          `json:"sellDex"`
	TokenIn            string          `json:"tokenIn"`
	TokenOut           string          `json:"tokenOut"`
	Path               []SwapStep      `json:"path"`
	AmountIn           *big.Int        `json:"amountIn"`
	ExpectedAmountOut  *big.Int        `json:"expectedAmountOut"`
	ExpectedProfitUsd  float64         `json:"expectedProfitUsd"`
	ProfitPercentage   float64         `json:"profitPercentage"`
	GasEstimateUsd     float64         `json:"gasEstimateUsd"`
	Confidence         float64         `json:"confidence"`
	WhaleTriggered     bool            `json:"whaleTriggered"`
	MlConfidenceBoost  float64         `json:"mlConfidenceBoost"`
	DetectedAtMs       int64           `json:"detectedAtMs"`
	ExpiresAtMs        int64           `json:"expiresAtMs"`
}

// Valid checks the two hard invariants.
func (o Opportunity) Valid() bool {
	return o.Confidence >= 0 && o.Confidence <= 1 && o.ExpiresAtMs > o.DetectedAtMs
}

// ExecutionOutcome is fed back into the ExecutionProbabilityTracker.
type ExecutionOutcome struct {
	OpportunityID string
	Success       bool
	ActualProfit  float64
	GasCost       float64
	Error         string
	TxHash        string
	LatencyMs     int64
}

// CircuitState is one of {CLOSED, OPEN, HALF_OPEN}.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// DrawdownState is one of {NORMAL, CAUTION, HALT, RECOVERY}, each
// carrying its own position-size multiplier.
type DrawdownState int

const (
	DrawdownNormal DrawdownState = iota
	DrawdownCaution
	DrawdownHalt
	DrawdownRecovery
)

// SizeMultiplier returns the position-size multiplier for the state.
func (s DrawdownState) SizeMultiplier() float64 {
	switch s {
	case DrawdownCaution:
		return 0.75
	case DrawdownHalt:
		return 0.0
	case DrawdownRecovery:
		return 0.5
	default:
		return 1.0
	}
}

func (s DrawdownState) String() string {
	switch s {
	case DrawdownCaution:
		return "CAUTION"
	case DrawdownHalt:
		return "HALT"
	case DrawdownRecovery:
		return "RECOVERY"
	default:
		return "NORMAL"
	}
}

// SkipReason is a typed policy-reject reason.
type SkipReason string

const (
	SkipNone                  SkipReason = ""
	SkipCircuitOpen           SkipReason = "CIRCUIT_OPEN"
	SkipDrawdownHalt          SkipReason = "DRAWDOWN_HALT"
	SkipLowEV                 SkipReason = "LOW_EV"
	SkipLowWinProbability     SkipReason = "LOW_WIN_PROBABILITY"
	SkipZeroPositionSize      SkipReason = "ZERO_POSITION_SIZE"
	SkipSimulationRevert      SkipReason = "SIMULATION_REVERT"
	SkipStalePrice            SkipReason = "STALE_PRICE"
	SkipDuplicateOpportunity  SkipReason = "DUPLICATE_OPPORTUNITY"
	SkipBelowProfitThreshold  SkipReason = "BELOW_PROFIT_THRESHOLD"
)

// Clock abstracts time.Now for deterministic tests across the core; all
// components that stamp DetectedAtMs/ExpiresAtMs/timeouts take a Clock
// instead of calling time.Now directly.
type Clock interface {
	NowMs() int64
}

type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}
