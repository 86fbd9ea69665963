package contractclient

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// FlashLoanProtocol identifies which flash-loan callback signature the
// executor contract must speak. Aave V3 and Uniswap-V3-style flash
// callbacks have incompatible signatures, so the opportunity carries its
// provider's protocol tag and the builder dispatches on it rather than
// attempting a shared callback interface.
type FlashLoanProtocol string

const (
	ProtocolAaveV3    FlashLoanProtocol = "aave-v3"
	ProtocolUniswapV3 FlashLoanProtocol = "uniswap-v3"
)

// flashLoanABI is the minimal ABI fragment for the two supported
// executor entry points: executeArbitrage (Aave V3-style flash loan) and
// uniswapV3FlashCallback (Uniswap-V3-style flash swap).
var flashLoanABI abi.ABI

func init() {
	const rawABI = `[
		{
			"type": "function",
			"name": "executeArbitrage",
			"inputs": [
				{"name": "asset", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "swapPath", "type": "tuple[]", "components": [
					{"name": "router", "type": "address"},
					{"name": "tokenIn", "type": "address"},
					{"name": "tokenOut", "type": "address"},
					{"name": "amountIn", "type": "uint256"},
					{"name": "data", "type": "bytes"}
				]},
				{"name": "minProfit", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"type": "function",
			"name": "uniswapV3FlashCallback",
			"inputs": [
				{"name": "fee0", "type": "uint256"},
				{"name": "fee1", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			],
			"outputs": []
		}
	]`
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(fmt.Sprintf("contractclient: invalid flash-loan ABI: %v", err))
	}
	flashLoanABI = parsed
}

// swapPathArg mirrors the executor contract's SwapStep tuple; field
// order and types must match flashLoanABI's "swapPath" component.
type swapPathArg struct {
	Router   common.Address
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	Data     []byte
}

// FlashLoanCalldataBuilder builds the executor calldata for a flash-loan
// Opportunity, dispatching by protocol tag.
type FlashLoanCalldataBuilder struct{}

// NewFlashLoanCalldataBuilder constructs a builder over the fixed
// executor ABI.
func NewFlashLoanCalldataBuilder() *FlashLoanCalldataBuilder {
	return &FlashLoanCalldataBuilder{}
}

// Build encodes the calldata for opp's path under the given protocol.
// Aave V3 encodes one flat executeArbitrage call covering the whole
// path; Uniswap-V3-style flash swaps instead encode only the callback
// payload, since the flash itself is triggered by the pool's swap call,
// not by the executor.
func (b *FlashLoanCalldataBuilder) Build(protocol FlashLoanProtocol, asset common.Address, amount *big.Int, opp types.Opportunity, minProfit *big.Int) ([]byte, error) {
	switch protocol {
	case ProtocolAaveV3:
		return b.buildAaveV3(asset, amount, opp, minProfit)
	case ProtocolUniswapV3:
		return b.buildUniswapV3Callback(opp, minProfit)
	default:
		return nil, fmt.Errorf("contractclient: unknown flash-loan protocol %q", protocol)
	}
}

func (b *FlashLoanCalldataBuilder) buildAaveV3(asset common.Address, amount *big.Int, opp types.Opportunity, minProfit *big.Int) ([]byte, error) {
	path, err := swapPathArgs(opp.Path)
	if err != nil {
		return nil, err
	}
	data, err := flashLoanABI.Pack("executeArbitrage", asset, amount, path, minProfit)
	if err != nil {
		return nil, fmt.Errorf("pack executeArbitrage: %w", err)
	}
	return data, nil
}

// buildUniswapV3Callback encodes the (fee0, fee1, data) callback payload
// the pool invokes post-flash; data carries the serialized swap path so
// the callback can execute the arbitrage and repay the flash in one
// transaction.
func (b *FlashLoanCalldataBuilder) buildUniswapV3Callback(opp types.Opportunity, minProfit *big.Int) ([]byte, error) {
	path, err := swapPathArgs(opp.Path)
	if err != nil {
		return nil, err
	}
	inner, err := packSwapPath(path, minProfit)
	if err != nil {
		return nil, err
	}
	data, err := flashLoanABI.Pack("uniswapV3FlashCallback", big.NewInt(0), big.NewInt(0), inner)
	if err != nil {
		return nil, fmt.Errorf("pack uniswapV3FlashCallback: %w", err)
	}
	return data, nil
}

func swapPathArgs(steps []types.SwapStep) ([]swapPathArg, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("contractclient: opportunity has no swap path")
	}
	args := make([]swapPathArg, len(steps))
	for i, step := range steps {
		if !common.IsHexAddress(step.Router) || !common.IsHexAddress(step.TokenIn) || !common.IsHexAddress(step.TokenOut) {
			return nil, fmt.Errorf("contractclient: invalid address in swap step %d", i)
		}
		amountIn := step.AmountIn
		if amountIn == nil {
			amountIn = big.NewInt(0) // chained from previous leg's output
		}
		args[i] = swapPathArg{
			Router:   common.HexToAddress(step.Router),
			TokenIn:  common.HexToAddress(step.TokenIn),
			TokenOut: common.HexToAddress(step.TokenOut),
			AmountIn: amountIn,
			Data:     step.Data,
		}
	}
	return args, nil
}

// packSwapPath ABI-encodes (swapPath, minProfit) as the callback's opaque
// data blob, reusing the executeArbitrage argument types for consistency
// across both protocol encodings.
func packSwapPath(path []swapPathArg, minProfit *big.Int) ([]byte, error) {
	tupleType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "router", Type: "address"},
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		return nil, fmt.Errorf("build swapPath type: %w", err)
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, fmt.Errorf("build uint256 type: %w", err)
	}
	args := abi.Arguments{{Type: tupleType}, {Type: uint256Type}}
	return args.Pack(path, minProfit)
}
