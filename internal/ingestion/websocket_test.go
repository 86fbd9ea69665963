package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderHealth_ScoreDegradesWithFailures(t *testing.T) {
	h := &ProviderHealth{}
	h.recordSuccess(1000)
	full := h.Score(1000, 10_000)

	h.recordFailure()
	afterOne := h.Score(1000, 10_000)
	assert.Less(t, afterOne, full)

	h.recordFailure()
	afterTwo := h.Score(1000, 10_000)
	assert.Less(t, afterTwo, afterOne)

	h.recordSuccess(1000)
	assert.Equal(t, full, h.Score(1000, 10_000))
}

func TestProviderHealth_ScoreDecaysWithStaleness(t *testing.T) {
	h := &ProviderHealth{}
	h.recordSuccess(1000)

	fresh := h.Score(1000, 10_000)
	stale := h.Score(1000+9_000, 10_000)
	assert.Greater(t, fresh, stale)
}

func TestProviderHealth_ExclusionCooldownDoublesPerRepeat(t *testing.T) {
	h := &ProviderHealth{}
	first := h.exclude(0)
	second := h.exclude(0)
	third := h.exclude(0)

	assert.Equal(t, 30*time.Second, first)
	assert.Equal(t, 60*time.Second, second)
	assert.Equal(t, 120*time.Second, third)
}

func TestProviderHealth_ExclusionCooldownCapsAtFiveMinutes(t *testing.T) {
	h := &ProviderHealth{}
	var last time.Duration
	for i := 0; i < 10; i++ {
		last = h.exclude(0)
	}
	assert.Equal(t, 5*time.Minute, last)
}

func TestProviderHealth_ExcludedUntilCooldownExpires(t *testing.T) {
	h := &ProviderHealth{}
	h.exclude(1000)
	assert.True(t, h.excluded(1000+1000))
	assert.False(t, h.excluded(1000+31_000))
}

func TestWebSocketManager_BestEndpointPrefersHealthier(t *testing.T) {
	m := NewWebSocketManager("ethereum", []string{"wss://primary", "wss://fallback"}, 10*time.Second, fixedClock{ms: 1000}, zerolog.Nop(), func(RawMessage) {})
	m.health["wss://primary"].recordFailure()
	m.health["wss://primary"].recordFailure()
	m.health["wss://primary"].recordFailure()
	m.health["wss://fallback"].recordSuccess(1000)

	assert.Equal(t, "wss://fallback", m.bestEndpoint())
}

func TestWebSocketManager_BestEndpointPrefersPrimaryOnTie(t *testing.T) {
	m := NewWebSocketManager("ethereum", []string{"wss://primary", "wss://fallback"}, 10*time.Second, fixedClock{ms: 1000}, zerolog.Nop(), func(RawMessage) {})
	assert.Equal(t, "wss://primary", m.bestEndpoint())
}

func TestWebSocketManager_BestEndpointSkipsExcludedProvider(t *testing.T) {
	m := NewWebSocketManager("ethereum", []string{"wss://primary", "wss://fallback"}, 10*time.Second, fixedClock{ms: 1000}, zerolog.Nop(), func(RawMessage) {})
	m.health["wss://primary"].exclude(1000)

	assert.Equal(t, "wss://fallback", m.bestEndpoint())
}

func TestWebSocketManager_BestEndpointFallsBackWhenAllExcluded(t *testing.T) {
	m := NewWebSocketManager("ethereum", []string{"wss://primary", "wss://fallback"}, 10*time.Second, fixedClock{ms: 1000}, zerolog.Nop(), func(RawMessage) {})
	m.health["wss://primary"].exclude(1000)
	m.health["wss://fallback"].exclude(1000)

	// both excluded; must still return one of the two rather than panic/empty
	best := m.bestEndpoint()
	assert.Contains(t, []string{"wss://primary", "wss://fallback"}, best)
}

type fixedClock struct{ ms int64 }

func (c fixedClock) NowMs() int64 { return c.ms }

func TestWebSocketManager_IsStaleWithNoMessagesYet(t *testing.T) {
	m := NewWebSocketManager("ethereum", []string{"wss://primary"}, time.Second, fixedClock{ms: 1000}, zerolog.Nop(), func(RawMessage) {})
	assert.True(t, m.IsStale())
}

func TestWebSocketManager_IsStaleAfterWindowElapses(t *testing.T) {
	clock := &mutableClock{ms: 1000}
	m := NewWebSocketManager("ethereum", []string{"wss://primary"}, time.Second, clock, zerolog.Nop(), func(RawMessage) {})
	m.lastMessageAtMs.Store(clock.NowMs())

	assert.False(t, m.IsStale())
	clock.ms += 2000
	assert.True(t, m.IsStale())
}

type mutableClock struct{ ms int64 }

func (c *mutableClock) NowMs() int64 { return c.ms }

func TestBackoffWithJitter_GrowsAndCaps(t *testing.T) {
	short := backoffWithJitter(100*time.Millisecond, time.Second, 1)
	long := backoffWithJitter(100*time.Millisecond, time.Second, 10)

	assert.LessOrEqual(t, short, time.Second+time.Second/4)
	assert.LessOrEqual(t, long, time.Second+time.Second/4)
	assert.Less(t, short, long)
}

func TestClassifyRateLimit_DetectsRateLimitMessages(t *testing.T) {
	assert.False(t, classifyRateLimit(nil))
	assert.True(t, classifyRateLimit(errors.New("connection failed: rate limit exceeded")))
	assert.True(t, classifyRateLimit(errors.New("Too Many Requests")))
	assert.False(t, classifyRateLimit(errors.New("connection reset by peer")))
}

func TestIsRateLimitPayload_MatchesJSONRPCCodes(t *testing.T) {
	assert.True(t, isRateLimitPayload([]byte(`{"error":{"code":-32005,"message":"limit exceeded"}}`)))
	assert.True(t, isRateLimitPayload([]byte(`{"error":{"code":-32016,"message":"too many requests"}}`)))
	assert.False(t, isRateLimitPayload([]byte(`{"error":{"code":-32000,"message":"execution reverted"}}`)))
	assert.False(t, isRateLimitPayload([]byte(`{"result":"0x1"}`)))
}

func TestExtractBlockNumber_ParsesLogsNotification(t *testing.T) {
	payload := []byte(`{"params":{"result":{"address":"0xabc","topics":[],"data":"0x","blockNumber":"0x64"}}}`)
	block, ok := extractBlockNumber(payload)
	require.True(t, ok)
	assert.Equal(t, uint64(100), block)
}

func TestExtractBlockNumber_FalseWhenNotALog(t *testing.T) {
	_, ok := extractBlockNumber([]byte(`{"id":1,"result":"0xsubid"}`))
	assert.False(t, ok)
}
