package contractclient

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-arb/arbcore/internal/types"
)

func sampleOpportunity() types.Opportunity {
	return types.Opportunity{
		ID:   "opp-1",
		Type: types.OpportunityFlashLoan,
		Path: []types.SwapStep{
			{
				Router:   "0x1111111111111111111111111111111111111111",
				TokenIn:  "0x2222222222222222222222222222222222222222",
				TokenOut: "0x3333333333333333333333333333333333333333",
				AmountIn: big.NewInt(1000),
			},
			{
				Router:   "0x4444444444444444444444444444444444444444",
				TokenIn:  "0x3333333333333333333333333333333333333333",
				TokenOut: "0x2222222222222222222222222222222222222222",
			},
		},
	}
}

func TestFlashLoanCalldataBuilder_AaveV3EncodesExecuteArbitrage(t *testing.T) {
	builder := NewFlashLoanCalldataBuilder()
	asset := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := builder.Build(ProtocolAaveV3, asset, big.NewInt(1000), sampleOpportunity(), big.NewInt(10))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	method, err := flashLoanABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "executeArbitrage", method.Name)
}

func TestFlashLoanCalldataBuilder_UniswapV3EncodesCallback(t *testing.T) {
	builder := NewFlashLoanCalldataBuilder()

	data, err := builder.Build(ProtocolUniswapV3, common.Address{}, big.NewInt(0), sampleOpportunity(), big.NewInt(5))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	method, err := flashLoanABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "uniswapV3FlashCallback", method.Name)
}

func TestFlashLoanCalldataBuilder_UnknownProtocolErrors(t *testing.T) {
	builder := NewFlashLoanCalldataBuilder()
	_, err := builder.Build(FlashLoanProtocol("unknown"), common.Address{}, big.NewInt(0), sampleOpportunity(), big.NewInt(0))
	assert.Error(t, err)
}

func TestFlashLoanCalldataBuilder_EmptyPathErrors(t *testing.T) {
	builder := NewFlashLoanCalldataBuilder()
	opp := types.Opportunity{Path: nil}
	_, err := builder.Build(ProtocolAaveV3, common.Address{}, big.NewInt(0), opp, big.NewInt(0))
	assert.Error(t, err)
}
