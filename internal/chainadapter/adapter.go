// Package chainadapter binds the execution and detection interfaces
// (GasEstimator, ChainClient, SimProvider, SubmissionChannel) to a real
// go-ethereum JSON-RPC client, generalized from a single DEX's direct
// ethclient calls (gas suggestion, nonce lookup, raw send) into reusable,
// per-chain adapters any chain in the topology can construct one of.
package chainadapter

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/blackhole-arb/arbcore/internal/cache"
	"github.com/blackhole-arb/arbcore/internal/execution"
	"github.com/blackhole-arb/arbcore/internal/types"
)

// GasEstimator converts a chain's cached gas price and a fixed gas-unit
// estimate into a USD cost, the GasEstimator interface ChainDetector
// needs.
type GasEstimator struct {
	prices   *cache.GasPriceCache
	gasUnits map[string]uint64 // chainID -> estimated gas units per trade
}

// NewGasEstimator builds an estimator over prices, defaulting any chain
// missing from gasUnits to 200,000 units (a generous two-hop swap
// estimate).
func NewGasEstimator(prices *cache.GasPriceCache, gasUnits map[string]uint64) *GasEstimator {
	if gasUnits == nil {
		gasUnits = make(map[string]uint64)
	}
	return &GasEstimator{prices: prices, gasUnits: gasUnits}
}

// EstimateGasCostUsd returns preset-adjusted gas price * gas units *
// native-token USD price.
func (e *GasEstimator) EstimateGasCostUsd(chainID string, preset cache.GasPreset, nativeUsd float64) float64 {
	gwei := e.prices.GasPriceGwei(chainID, preset)
	units, ok := e.gasUnits[chainID]
	if !ok {
		units = 200_000
	}
	nativeCost := gwei * 1e-9 * float64(units)
	return nativeCost * nativeUsd
}

// NonceClient implements execution.ChainClient by reading the pending
// transaction count from each chain's RPC endpoint.
type NonceClient struct {
	clients map[string]*ethclient.Client
}

// NewNonceClient builds a client over one *ethclient.Client per chain ID.
func NewNonceClient(clients map[string]*ethclient.Client) *NonceClient {
	return &NonceClient{clients: clients}
}

// TransactionCount returns wallet's pending nonce on chainID.
func (n *NonceClient) TransactionCount(ctx context.Context, chainID, wallet string) (uint64, error) {
	client, ok := n.clients[chainID]
	if !ok {
		return 0, fmt.Errorf("chainadapter: no RPC client configured for chain %q", chainID)
	}
	return client.PendingNonceAt(ctx, common.HexToAddress(wallet))
}

var _ execution.ChainClient = (*NonceClient)(nil)

// PublicMempoolChannel submits a pre-signed raw transaction directly to
// a chain's public mempool via eth_sendRawTransaction, the lowest-cost,
// lowest-protection fallback every chain's routing table ends in.
type PublicMempoolChannel struct {
	chainID string
	client  *ethclient.Client
}

// NewPublicMempoolChannel builds a submission channel for one chain.
func NewPublicMempoolChannel(chainID string, client *ethclient.Client) *PublicMempoolChannel {
	return &PublicMempoolChannel{chainID: chainID, client: client}
}

// Name identifies this channel in MEV routing logs.
func (c *PublicMempoolChannel) Name() string { return "public-mempool:" + c.chainID }

// Submit decodes tx.RawHex as an RLP-encoded signed transaction and
// broadcasts it.
func (c *PublicMempoolChannel) Submit(ctx context.Context, tx execution.SignedTx) (execution.SubmissionResult, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(tx.RawHex, "0x"))
	if err != nil {
		return execution.SubmissionResult{}, fmt.Errorf("decode raw tx: %w", err)
	}

	var decoded gethtypes.Transaction
	if err := rlp.DecodeBytes(raw, &decoded); err != nil {
		return execution.SubmissionResult{}, fmt.Errorf("rlp decode tx: %w", err)
	}

	if err := c.client.SendTransaction(ctx, &decoded); err != nil {
		return execution.SubmissionResult{}, fmt.Errorf("send transaction: %w", err)
	}

	return execution.SubmissionResult{SubmittedHash: decoded.Hash().Hex(), Accepted: true}, nil
}

var _ execution.SubmissionChannel = (*PublicMempoolChannel)(nil)

// EthCallSimProvider pre-flight-checks a transaction via eth_call
// against the latest block, surfacing any revert without spending gas.
type EthCallSimProvider struct {
	chainID string
	client  *ethclient.Client
	health  float64
}

// NewEthCallSimProvider builds a provider with a fixed health score;
// eth_call is a reliable baseline but not as authoritative as a full
// EVM trace, so it defaults below a dedicated simulator's score.
func NewEthCallSimProvider(chainID string, client *ethclient.Client) *EthCallSimProvider {
	return &EthCallSimProvider{chainID: chainID, client: client, health: 0.7}
}

// Name identifies this provider in simulation-service selection.
func (p *EthCallSimProvider) Name() string { return "eth_call:" + p.chainID }

// HealthScore reports this provider's fixed reliability weight.
func (p *EthCallSimProvider) HealthScore() float64 { return p.health }

// Simulate performs an eth_call with req's fields; a revert surfaces as
// a non-nil error from the RPC layer, which the caller interprets as a
// "reverts" result rather than an infrastructure failure.
func (p *EthCallSimProvider) Simulate(ctx context.Context, req execution.SimulationRequest) (execution.SimulationResult, error) {
	to := common.HexToAddress(req.To)
	from := common.HexToAddress(req.From)
	callMsg := ethereum.CallMsg{From: from, To: &to, Data: req.Data}

	var blockNumber *big.Int
	if req.BlockNumber > 0 {
		blockNumber = new(big.Int).SetUint64(req.BlockNumber)
	}

	_, err := p.client.CallContract(ctx, callMsg, blockNumber)
	if err != nil {
		return execution.SimulationResult{Reverts: true, RevertReason: err.Error()}, nil
	}
	return execution.SimulationResult{Reverts: false}, nil
}

var _ execution.SimProvider = (*EthCallSimProvider)(nil)

// CrossChainSimProvider adapts the per-chain EthCallSimProvider set into
// detector.SimulationProvider's narrower (opp) -> (reverts, err) shape,
// the cheap pre-validation path the cross-chain detector's
// PreValidationOrchestrator calls ahead of a trade being sized and sent
// to the full execution-time SimulationService.
type CrossChainSimProvider struct {
	byChain map[string]*EthCallSimProvider
}

// NewCrossChainSimProvider builds a provider over one EthCallSimProvider
// per chain.
func NewCrossChainSimProvider(byChain map[string]*EthCallSimProvider) *CrossChainSimProvider {
	return &CrossChainSimProvider{byChain: byChain}
}

// Simulate eth_calls opp's buy-chain leg; a chain with no configured
// provider fails open (no revert signal either way).
func (c *CrossChainSimProvider) Simulate(ctx context.Context, opp types.Opportunity) (bool, error) {
	provider, ok := c.byChain[opp.BuyChain]
	if !ok {
		return false, nil
	}
	result, err := provider.Simulate(ctx, execution.SimulationRequest{Chain: opp.BuyChain, From: opp.TokenIn, To: opp.TokenOut})
	if err != nil {
		return false, err
	}
	return result.Reverts, nil
}
