package execution

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-arb/arbcore/internal/cache"
	"github.com/blackhole-arb/arbcore/internal/types"
	"github.com/blackhole-arb/arbcore/pkg/contractclient"
)

type fixedGasPrice struct{ gwei float64 }

func (g fixedGasPrice) GasPriceGwei(chainID string, preset cache.GasPreset) float64 { return g.gwei }

func testFlashLoanOpportunity() types.Opportunity {
	return types.Opportunity{
		ID:                "opp-1",
		Type:              types.OpportunityFlashLoan,
		BuyChain:          "ethereum",
		TokenIn:           "0x0000000000000000000000000000000000000001",
		TokenOut:          "0x0000000000000000000000000000000000000002",
		AmountIn:          big.NewInt(1_000_000),
		ExpectedAmountOut: big.NewInt(1_050_000),
		Path: []types.SwapStep{
			{
				Router:   "0x0000000000000000000000000000000000000003",
				TokenIn:  "0x0000000000000000000000000000000000000001",
				TokenOut: "0x0000000000000000000000000000000000000002",
				AmountIn: big.NewInt(1_000_000),
				ChainID:  "ethereum",
				DexName:  "uniswap_v2",
			},
		},
	}
}

func newTestFlashLoanStrategy(t *testing.T) *FlashLoanStrategy {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	executors := map[string]ChainExecutor{
		"ethereum": NewChainExecutor(common.HexToAddress("0x00000000000000000000000000000000000099"), contractclient.ProtocolAaveV3),
	}
	chainNum := map[string]*big.Int{"ethereum": big.NewInt(1)}

	return NewFlashLoanStrategy(executors, chainNum, fixedGasPrice{gwei: 30}, 0, key)
}

func TestFlashLoanStrategy_SupportsOnlyConfiguredChainsAndType(t *testing.T) {
	s := newTestFlashLoanStrategy(t)

	assert.True(t, s.Supports(testFlashLoanOpportunity()))

	unsupportedChain := testFlashLoanOpportunity()
	unsupportedChain.BuyChain = "polygon"
	assert.False(t, s.Supports(unsupportedChain))

	wrongType := testFlashLoanOpportunity()
	wrongType.Type = types.OpportunityCrossDex
	assert.False(t, s.Supports(wrongType))
}

func TestFlashLoanStrategy_BuildProducesSignedRawTransaction(t *testing.T) {
	s := newTestFlashLoanStrategy(t)

	tx, err := s.Build(testFlashLoanOpportunity(), big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.RawHex)
	assert.Equal(t, "0x", tx.RawHex[:2])
}

func TestFlashLoanStrategy_BuildFailsForUnconfiguredChain(t *testing.T) {
	s := newTestFlashLoanStrategy(t)
	opp := testFlashLoanOpportunity()
	opp.BuyChain = "base"

	_, err := s.Build(opp, big.NewInt(1_000_000))
	assert.Error(t, err)
}
