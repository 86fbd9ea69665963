package contractclient

import (
	"context"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

type fakeChainReader struct {
	callResult []byte
	callErr    error
	tx         *types.Transaction
}

func (f *fakeChainReader) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callResult, f.callErr
}

func (f *fakeChainReader) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	return f.tx, true, nil
}

func mustParseABI(t *testing.T, raw string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(raw))
	require.NoError(t, err)
	return parsed
}

func TestClient_CallUnpacksResult(t *testing.T) {
	contractABI := mustParseABI(t, erc20ABIJSON)
	packedResult, err := contractABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(1000))
	require.NoError(t, err)

	reader := &fakeChainReader{callResult: packedResult}
	client := NewContractClient(reader, common.HexToAddress("0x1111111111111111111111111111111111111111"), contractABI)

	var balance *big.Int
	err = client.Call(context.Background(), &balance, "balanceOf", common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), balance)
}

func TestClient_DecodeTransaction(t *testing.T) {
	contractABI := mustParseABI(t, erc20ABIJSON)
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	amount := big.NewInt(500)

	data, err := contractABI.Pack("transfer", to, amount)
	require.NoError(t, err)

	client := NewContractClient(&fakeChainReader{}, common.HexToAddress("0x1111111111111111111111111111111111111111"), contractABI)
	decoded, err := client.DecodeTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
	assert.Equal(t, to, decoded.Args["to"])
	assert.Equal(t, amount, decoded.Args["amount"])
}

func TestClient_DecodeTransactionTooShortCalldata(t *testing.T) {
	contractABI := mustParseABI(t, erc20ABIJSON)
	client := NewContractClient(&fakeChainReader{}, common.Address{}, contractABI)
	_, err := client.DecodeTransaction([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestClient_TransactionDataFetchesCalldata(t *testing.T) {
	contractABI := mustParseABI(t, erc20ABIJSON)
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := contractABI.Pack("transfer", to, big.NewInt(1))
	require.NoError(t, err)

	tx := types.NewTransaction(0, to, big.NewInt(0), 21000, big.NewInt(1), data)
	reader := &fakeChainReader{tx: tx}
	client := NewContractClient(reader, to, contractABI)

	got, err := client.TransactionData(context.Background(), common.Hash{})
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
