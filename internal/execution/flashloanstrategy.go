package execution

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/blackhole-arb/arbcore/internal/cache"
	"github.com/blackhole-arb/arbcore/internal/types"
	"github.com/blackhole-arb/arbcore/pkg/contractclient"
)

// ChainGasPrice supplies the preset-adjusted gas price for a transaction,
// in gwei, the minimal read FlashLoanStrategy needs from GasPriceCache.
type ChainGasPrice interface {
	GasPriceGwei(chainID string, preset cache.GasPreset) float64
}

// ChainExecutor names one chain's flash-loan executor contract and the
// protocol it speaks.
type ChainExecutor struct {
	Address  common.Address
	Protocol contractclient.FlashLoanProtocol
}

// FlashLoanStrategy builds and signs a flash-loan executor call for
// OpportunityFlashLoan opportunities only (Supports rejects every other
// type), generalized from a single DEX's inline
// swap-call construction into a calldata builder plus EIP-155 signer any
// chain's executor contract can share.
type FlashLoanStrategy struct {
	builder   *contractclient.FlashLoanCalldataBuilder
	executors map[string]ChainExecutor // keyed by domain chain ID, e.g. "ethereum"
	chainNum  map[string]*big.Int      // keyed the same way, EIP-155 numeric ID
	gas       ChainGasPrice
	gasLimit  uint64
	key       *ecdsa.PrivateKey
}

// NewFlashLoanStrategy builds a strategy signing with key, quoting gas
// price from gas, and dispatching calldata per chain's configured
// executor/protocol pair.
func NewFlashLoanStrategy(executors map[string]ChainExecutor, chainNum map[string]*big.Int, gas ChainGasPrice, gasLimit uint64, key *ecdsa.PrivateKey) *FlashLoanStrategy {
	if gasLimit == 0 {
		gasLimit = 500_000
	}
	return &FlashLoanStrategy{
		builder:   contractclient.NewFlashLoanCalldataBuilder(),
		executors: executors,
		chainNum:  chainNum,
		gas:       gas,
		gasLimit:  gasLimit,
		key:       key,
	}
}

// NewChainExecutor builds one chain's executor binding.
func NewChainExecutor(address common.Address, protocol contractclient.FlashLoanProtocol) ChainExecutor {
	return ChainExecutor{Address: address, Protocol: protocol}
}

// Name identifies this strategy in router logs.
func (s *FlashLoanStrategy) Name() string { return "flash-loan" }

// Supports accepts flash-loan opportunities on a chain with a configured
// executor.
func (s *FlashLoanStrategy) Supports(opp types.Opportunity) bool {
	if opp.Type != types.OpportunityFlashLoan {
		return false
	}
	_, ok := s.executors[opp.BuyChain]
	return ok
}

// Build encodes the executor calldata for opp via FlashLoanCalldataBuilder,
// then signs an EIP-155 transaction calling the executor with amountIn as
// the flash-borrowed amount.
func (s *FlashLoanStrategy) Build(opp types.Opportunity, amountIn *big.Int) (SignedTx, error) {
	executor, ok := s.executors[opp.BuyChain]
	if !ok {
		return SignedTx{}, fmt.Errorf("flashloanstrategy: no executor configured for chain %q", opp.BuyChain)
	}
	chainNum, ok := s.chainNum[opp.BuyChain]
	if !ok {
		return SignedTx{}, fmt.Errorf("flashloanstrategy: no numeric chain ID configured for chain %q", opp.BuyChain)
	}
	if !common.IsHexAddress(opp.TokenIn) {
		return SignedTx{}, fmt.Errorf("flashloanstrategy: invalid TokenIn address %q", opp.TokenIn)
	}

	minProfit := new(big.Int)
	if opp.ExpectedAmountOut != nil && opp.AmountIn != nil {
		minProfit.Sub(opp.ExpectedAmountOut, opp.AmountIn)
	}
	if minProfit.Sign() < 0 {
		minProfit.SetInt64(0)
	}

	calldata, err := s.builder.Build(executor.Protocol, common.HexToAddress(opp.TokenIn), amountIn, opp, minProfit)
	if err != nil {
		return SignedTx{}, fmt.Errorf("build flash-loan calldata: %w", err)
	}

	gasPriceGwei := s.gas.GasPriceGwei(opp.BuyChain, cache.GasPresetFast)
	gasPriceWei := big.NewInt(int64(gasPriceGwei * 1e9))

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    0,
		To:       &executor.Address,
		Value:    big.NewInt(0),
		Gas:      s.gasLimit,
		GasPrice: gasPriceWei,
		Data:     calldata,
	})

	signer := gethtypes.NewEIP155Signer(chainNum)
	signed, err := gethtypes.SignTx(tx, signer, s.key)
	if err != nil {
		return SignedTx{}, fmt.Errorf("sign flash-loan transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return SignedTx{}, fmt.Errorf("marshal signed transaction: %w", err)
	}

	return SignedTx{RawHex: "0x" + common.Bytes2Hex(raw)}, nil
}

var _ Strategy = (*FlashLoanStrategy)(nil)
