package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// wireLog mirrors the subset of an eth_subscribe logs notification this
// core cares about; full ABI decoding of topics/data happens below per
// event signature.
type wireLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
}

type wireEnvelope struct {
	Params struct {
		Result wireLog `json:"result"`
	} `json:"params"`
}

// Uniswap V2-family event signatures this core decodes.
const (
	topicSync = "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"
	topicSwap = "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"

	// TopicSync and TopicSwap are exported for callers building the
	// WebSocketManager's per-pair SubscriptionTopic list.
	TopicSync = topicSync
	TopicSwap = topicSwap
)

// PairTokens is the static identity a PairTokenLookup resolves a pair
// contract address to.
type PairTokens struct {
	Token0    string // token0 contract address
	Token1    string // token1 contract address
	Decimals0 uint8
	Decimals1 uint8
	Symbol0   string // canonical, chain-independent symbol, e.g. "weth"
	Symbol1   string
}

// PairTokenLookup resolves a pair contract address to its constituent
// tokens. Sync/Swap event logs carry reserve/amount data only, never
// token addresses, so this lookup is the decoder's sole source for
// PriceUpdate.Token0/Token1/Symbol0/Symbol1.
type PairTokenLookup interface {
	TokensForPair(pairAddress string) (PairTokens, bool)
}

// StaticPairTokenLookup is a PairTokenLookup backed by the chain's
// configured pair topology, populated once at startup.
type StaticPairTokenLookup struct {
	byAddress map[string]PairTokens
}

// NewStaticPairTokenLookup constructs an empty lookup; call Register for
// each configured pair.
func NewStaticPairTokenLookup() *StaticPairTokenLookup {
	return &StaticPairTokenLookup{byAddress: make(map[string]PairTokens)}
}

// Register records pairAddress's token identity, keyed case-insensitively.
func (l *StaticPairTokenLookup) Register(pairAddress string, tokens PairTokens) {
	l.byAddress[strings.ToLower(pairAddress)] = tokens
}

// TokensForPair implements PairTokenLookup.
func (l *StaticPairTokenLookup) TokensForPair(pairAddress string) (PairTokens, bool) {
	t, ok := l.byAddress[strings.ToLower(pairAddress)]
	return t, ok
}

var _ PairTokenLookup = (*StaticPairTokenLookup)(nil)

// EventDecoder turns a RawMessage into either a reserve update or a swap
// event, dispatching on the log's topic0.
type EventDecoder struct {
	chainID string
	dexName string
	tokens  PairTokenLookup // may be nil; Token0/Token1/Symbol0/Symbol1 are left empty then
}

// NewEventDecoder constructs a decoder for one (chain, dex) pair; each
// chain/dex combination ingestion manager owns its own decoder since
// ABIs and decimals can differ per DEX fork. tokens resolves a decoded
// pair address to its token identity; pass nil to disable resolution.
func NewEventDecoder(chainID, dexName string, tokens PairTokenLookup) *EventDecoder {
	return &EventDecoder{chainID: chainID, dexName: dexName, tokens: tokens}
}

// TokensForPair exposes the decoder's configured token lookup so callers
// that already hold a decoder (e.g. a whale tracker wired off the
// decoded swap stream) don't need their own copy of the pair topology.
func (d *EventDecoder) TokensForPair(pairAddress string) (PairTokens, bool) {
	if d.tokens == nil {
		return PairTokens{}, false
	}
	return d.tokens.TokensForPair(pairAddress)
}

// DecodeSync decodes a Sync(uint112 reserve0, uint112 reserve1) log into
// a PriceUpdate. Returns ok=false if msg is not a Sync event.
func (d *EventDecoder) DecodeSync(raw RawMessage) (update types.PriceUpdate, ok bool, err error) {
	logEntry, matched, err := d.unwrap(raw, topicSync)
	if err != nil || !matched {
		return types.PriceUpdate{}, false, err
	}

	reserve0, reserve1, err := decodeTwoUint112(logEntry.Data)
	if err != nil {
		return types.PriceUpdate{}, false, fmt.Errorf("decode sync data: %w", err)
	}

	block, err := hexToUint64(logEntry.BlockNumber)
	if err != nil {
		return types.PriceUpdate{}, false, fmt.Errorf("decode block number: %w", err)
	}

	update := types.PriceUpdate{
		ChainID:     d.chainID,
		DexName:     d.dexName,
		PairAddress: logEntry.Address,
		Reserve0:    reserve0.String(),
		Reserve1:    reserve1.String(),
		BlockNumber: block,
		TimestampMs: raw.ReceivedAtMs,
	}
	if d.tokens != nil {
		if t, ok := d.tokens.TokensForPair(logEntry.Address); ok {
			update.Token0, update.Token1 = t.Token0, t.Token1
			update.Symbol0, update.Symbol1 = t.Symbol0, t.Symbol1
		}
	}
	return update, true, nil
}

// DecodeSwap decodes a Swap(...) log into a SwapEvent. Returns ok=false
// if msg is not a Swap event.
func (d *EventDecoder) DecodeSwap(raw RawMessage) (event types.SwapEvent, ok bool, err error) {
	logEntry, matched, err := d.unwrap(raw, topicSwap)
	if err != nil || !matched {
		return types.SwapEvent{}, false, err
	}

	amount0In, amount1In, amount0Out, amount1Out, err := decodeFourUint256(logEntry.Data)
	if err != nil {
		return types.SwapEvent{}, false, fmt.Errorf("decode swap data: %w", err)
	}

	block, err := hexToUint64(logEntry.BlockNumber)
	if err != nil {
		return types.SwapEvent{}, false, fmt.Errorf("decode block number: %w", err)
	}
	logIndex, err := hexToUint64(logEntry.LogIndex)
	if err != nil {
		return types.SwapEvent{}, false, fmt.Errorf("decode log index: %w", err)
	}

	sender := ""
	if len(logEntry.Topics) > 1 {
		sender = logEntry.Topics[1]
	}

	return types.SwapEvent{
		ChainID:     d.chainID,
		DexName:     d.dexName,
		PairAddress: logEntry.Address,
		Sender:      sender,
		Amount0In:   amount0In,
		Amount1In:   amount1In,
		Amount0Out:  amount0Out,
		Amount1Out:  amount1Out,
		TxHash:      logEntry.TxHash,
		LogIndex:    uint(logIndex),
		BlockNumber: block,
		TimestampMs: raw.ReceivedAtMs,
	}, true, nil
}

func (d *EventDecoder) unwrap(raw RawMessage, wantTopic string) (wireLog, bool, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw.Payload, &env); err != nil {
		return wireLog{}, false, fmt.Errorf("unmarshal envelope: %w", err)
	}
	logEntry := env.Params.Result
	if len(logEntry.Topics) == 0 || logEntry.Topics[0] != wantTopic {
		return wireLog{}, false, nil
	}
	return logEntry, true, nil
}

// decodeTwoUint112 decodes two packed uint112 words from a 32-byte-word
// ABI-encoded data blob (64 bytes of hex after "0x").
func decodeTwoUint112(hexData string) (*big.Int, *big.Int, error) {
	words, err := splitWords(hexData, 2)
	if err != nil {
		return nil, nil, err
	}
	return words[0], words[1], nil
}

// decodeFourUint256 decodes the four amount fields of a Swap event.
func decodeFourUint256(hexData string) (a0in, a1in, a0out, a1out *big.Int, err error) {
	words, err := splitWords(hexData, 4)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return words[0], words[1], words[2], words[3], nil
}

func splitWords(hexData string, count int) ([]*big.Int, error) {
	data := hexData
	if len(data) >= 2 && data[:2] == "0x" {
		data = data[2:]
	}
	if len(data) < count*64 {
		return nil, fmt.Errorf("expected at least %d words, got %d hex chars", count, len(data))
	}
	out := make([]*big.Int, count)
	for i := 0; i < count; i++ {
		word := data[i*64 : (i+1)*64]
		value, ok := new(big.Int).SetString(word, 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex word %q", word)
		}
		out[i] = value
	}
	return out, nil
}

func hexToUint64(hexStr string) (uint64, error) {
	data := hexStr
	if len(data) >= 2 && data[:2] == "0x" {
		data = data[2:]
	}
	if data == "" {
		return 0, nil
	}
	value, ok := new(big.Int).SetString(data, 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex number %q", hexStr)
	}
	return value.Uint64(), nil
}
