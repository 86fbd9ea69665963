// Package ingestion manages the per-chain WebSocket connections that feed
// swap/sync events into the detection pipeline: one manager per chain,
// automatic reconnect with jittered backoff across a primary/fallback
// endpoint list, staleness detection, and provider health scoring.
// Generalized from a single-endpoint websocket client (nhooyr.io/websocket)
// into the multi-chain, multi-endpoint topology this core needs.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// RawMessage is one inbound frame, handed to the EventDecoder.
type RawMessage struct {
	ChainID      string
	Payload      []byte
	ReceivedAtMs int64
}

// SubscriptionTopic is one eth_subscribe('logs', ...) request the manager
// issues on every connect, and re-issues on every reconnect.
type SubscriptionTopic struct {
	Name    string // pair address or label, surfaced in subscriptionRecoveryPartial
	Address string
	Topics  []string // log topic0 hashes (Sync, Swap, ...)
}

// WSEventType names one of the manager's observable lifecycle events.
type WSEventType string

const (
	EventMessage                    WSEventType = "message"
	EventSubscribed                  WSEventType = "subscribed"
	EventReconnected                 WSEventType = "reconnected"
	EventRateLimit                   WSEventType = "rateLimit"
	EventStaleConnection              WSEventType = "staleConnection"
	EventDataGap                     WSEventType = "dataGap"
	EventSubscriptionRecoveryPartial WSEventType = "subscriptionRecoveryPartial"
)

// WSEvent is the payload delivered to an onEvent callback; only the fields
// relevant to Type are populated.
type WSEvent struct {
	Type              WSEventType
	ChainID           string
	Provider          string
	CooldownMs        int64
	LastMessageAgeMs  int64
	FromBlock         uint64
	ToBlock           uint64
	FailedTopics      []string
}

// ProviderHealth tracks a per-endpoint rolling health score plus the
// rate-limit exclusion window described by the reconnection algorithm:
// an excluded provider is skipped by endpoint selection until its cooldown
// expires, with each repeat exclusion doubling the cooldown up to 5 min.
type ProviderHealth struct {
	mu sync.Mutex

	consecutiveOK  int
	consecutiveErr int

	lastMessageAtMs int64
	lastConnectMs   int64 // wall-clock time taken to establish the last connection

	excludedUntilMs int64
	exclusionCount  int
}

const (
	baseExclusionCooldown = 30 * time.Second
	maxExclusionCooldown  = 5 * time.Minute
)

// recordSuccess resets the failure streak on a received message.
func (h *ProviderHealth) recordSuccess(nowMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveOK++
	h.consecutiveErr = 0
	h.lastMessageAtMs = nowMs
}

// recordFailure bumps the failure streak.
func (h *ProviderHealth) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveErr++
	h.consecutiveOK = 0
}

// recordConnect stores how long the dial+handshake took, feeding the
// latency component of Score.
func (h *ProviderHealth) recordConnect(durationMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastConnectMs = durationMs
}

// exclude opens (or escalates) this provider's cooldown window, starting
// at 30s and doubling per repeat exclusion, capped at 5 min.
func (h *ProviderHealth) exclude(nowMs int64) (cooldown time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cooldown = baseExclusionCooldown << uint(minInt(h.exclusionCount, 10))
	if cooldown > maxExclusionCooldown || cooldown <= 0 {
		cooldown = maxExclusionCooldown
	}
	h.exclusionCount++
	h.excludedUntilMs = nowMs + cooldown.Milliseconds()
	return cooldown
}

// excluded reports whether this provider is still inside its cooldown
// window at nowMs.
func (h *ProviderHealth) excluded(nowMs int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return nowMs < h.excludedUntilMs
}

// Score computes the weighted provider health score: 30% connect latency,
// 40% message reliability, 60% freshness, normalized back to a [0,1]
// range (the three weights sum to 1.3 by design — freshness dominates
// since a provider can be perfectly reliable yet silently stopped
// delivering). Used for fallback ranking only, never for exclusion.
func (h *ProviderHealth) Score(nowMs int64, stalenessWindowMs int64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	latencyScore := 1.0
	if h.lastConnectMs > 0 {
		latencyScore = 1.0 - float64(h.lastConnectMs)/1000.0
		latencyScore = clamp01(latencyScore)
	}

	reliabilityScore := 1.0
	if h.consecutiveErr > 0 {
		reliabilityScore = 1.0 / float64(1+h.consecutiveErr)
	}

	freshnessScore := 0.0
	if h.lastMessageAtMs > 0 && stalenessWindowMs > 0 {
		age := nowMs - h.lastMessageAtMs
		freshnessScore = clamp01(1.0 - float64(age)/float64(stalenessWindowMs))
	}

	weighted := 0.3*latencyScore + 0.4*reliabilityScore + 0.6*freshnessScore
	score := weighted / 1.3
	if score < 0.05 {
		return 0.05
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WebSocketManager owns the connection lifecycle for one chain: dialing
// the best-scoring, non-excluded endpoint, resubscribing its topics,
// reconnecting with jittered exponential backoff, and rotating away from
// providers that rate-limit or go silently stale.
type WebSocketManager struct {
	chainID   string
	endpoints []string
	topics    []SubscriptionTopic
	health    map[string]*ProviderHealth
	clock     types.Clock
	log       zerolog.Logger

	stalenessWindow time.Duration
	lastMessageAtMs atomic.Int64
	lastBlock       atomic.Uint64

	baseBackoff time.Duration
	maxBackoff  time.Duration

	subscribeIDSeq atomic.Int64

	onMessage func(RawMessage)
	onEvent   func(WSEvent)
}

// NewWebSocketManager constructs a manager for chainID across the given
// primary+fallback endpoints (primary first).
func NewWebSocketManager(chainID string, endpoints []string, stalenessWindow time.Duration, clock types.Clock, log zerolog.Logger, onMessage func(RawMessage)) *WebSocketManager {
	health := make(map[string]*ProviderHealth, len(endpoints))
	for _, ep := range endpoints {
		health[ep] = &ProviderHealth{}
	}
	if stalenessWindow <= 0 {
		stalenessWindow = 10 * time.Second
	}
	return &WebSocketManager{
		chainID:         chainID,
		endpoints:       endpoints,
		health:          health,
		clock:           clock,
		log:             log,
		stalenessWindow: stalenessWindow,
		baseBackoff:     200 * time.Millisecond,
		maxBackoff:      30 * time.Second,
		onMessage:       onMessage,
	}
}

// SetTopics configures the subscription topics resubscribed on every
// connect. Must be called before Run.
func (m *WebSocketManager) SetTopics(topics []SubscriptionTopic) { m.topics = topics }

// OnEvent registers a callback for the manager's lifecycle events
// (message, subscribed, reconnected, rateLimit, staleConnection, dataGap,
// subscriptionRecoveryPartial). Must be called before Run.
func (m *WebSocketManager) OnEvent(fn func(WSEvent)) { m.onEvent = fn }

func (m *WebSocketManager) emit(evt WSEvent) {
	if m.onEvent != nil {
		evt.ChainID = m.chainID
		m.onEvent(evt)
	}
}

// Run blocks, maintaining a connection to the best-scoring endpoint and
// reconnecting on disconnect, until ctx is canceled.
func (m *WebSocketManager) Run(ctx context.Context) {
	attempt := 0
	reconnecting := false
	for {
		if ctx.Err() != nil {
			return
		}

		endpoint := m.bestEndpoint()
		err := m.connectAndRead(ctx, endpoint, reconnecting)
		if ctx.Err() != nil {
			return
		}

		m.health[endpoint].recordFailure()
		if classifyRateLimit(err) {
			cooldown := m.health[endpoint].exclude(m.clock.NowMs())
			m.emit(WSEvent{Type: EventRateLimit, Provider: endpoint, CooldownMs: cooldown.Milliseconds()})
			m.log.Warn().Str("chain", m.chainID).Str("endpoint", endpoint).Dur("cooldown", cooldown).Msg("websocket provider rate-limited, entering cooldown")
		} else {
			m.log.Warn().Err(err).Str("chain", m.chainID).Str("endpoint", endpoint).Msg("websocket connection lost, reconnecting")
		}

		attempt++
		reconnecting = true
		wait := backoffWithJitter(m.baseBackoff, m.maxBackoff, attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// bestEndpoint picks the highest-scoring endpoint that is not currently
// excluded, preferring the primary (index 0) on ties. If every endpoint
// is excluded, the one closest to finishing its cooldown is used anyway
// (no connection is strictly better than a forced wait).
func (m *WebSocketManager) bestEndpoint() string {
	now := m.clock.NowMs()
	stalenessMs := m.stalenessWindow.Milliseconds()

	best := ""
	bestScore := -1.0
	allExcluded := true
	for _, ep := range m.endpoints {
		if !m.health[ep].excluded(now) {
			allExcluded = false
			score := m.health[ep].Score(now, stalenessMs)
			if score > bestScore {
				best = ep
				bestScore = score
			}
		}
	}
	if !allExcluded {
		return best
	}
	// Degenerate case: every endpoint is cooling down. Pick the one with
	// the soonest expiry so we resume as soon as physically possible.
	soonest := m.endpoints[0]
	soonestAt := m.health[soonest].excludedUntilMs
	for _, ep := range m.endpoints[1:] {
		if at := m.health[ep].excludedUntilMs; at < soonestAt {
			soonest, soonestAt = ep, at
		}
	}
	return soonest
}

func (m *WebSocketManager) connectAndRead(ctx context.Context, endpoint string, reconnecting bool) error {
	dialStart := m.clock.NowMs()
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.CloseNow()
	m.health[endpoint].recordConnect(m.clock.NowMs() - dialStart)

	lastBlockBeforeConnect := m.lastBlock.Load()

	failedTopics := m.resubscribe(ctx, conn, endpoint)
	if len(failedTopics) > 0 {
		m.emit(WSEvent{Type: EventSubscriptionRecoveryPartial, Provider: endpoint, FailedTopics: failedTopics})
	}

	m.health[endpoint].recordSuccess(m.clock.NowMs())
	if reconnecting {
		m.emit(WSEvent{Type: EventReconnected, Provider: endpoint})
		m.log.Info().Str("chain", m.chainID).Str("endpoint", endpoint).Msg("websocket reconnected")
	} else {
		m.emit(WSEvent{Type: EventSubscribed, Provider: endpoint})
		m.log.Info().Str("chain", m.chainID).Str("endpoint", endpoint).Msg("websocket connected")
	}

	staleCtx, stopStaleWatch := context.WithCancel(ctx)
	defer stopStaleWatch()
	go m.watchStaleness(staleCtx, conn, endpoint)

	firstMessage := true
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read from %s: %w", endpoint, err)
		}
		if isRateLimitPayload(payload) {
			return fmt.Errorf("read from %s: %w", endpoint, errRateLimited)
		}

		now := m.clock.NowMs()
		m.lastMessageAtMs.Store(now)
		m.health[endpoint].recordSuccess(now)

		if block, ok := extractBlockNumber(payload); ok {
			if firstMessage && reconnecting && lastBlockBeforeConnect > 0 && block > lastBlockBeforeConnect+1 {
				m.emit(WSEvent{Type: EventDataGap, FromBlock: lastBlockBeforeConnect, ToBlock: block})
			}
			m.lastBlock.Store(block)
		}
		firstMessage = false

		m.emit(WSEvent{Type: EventMessage, Provider: endpoint})
		m.onMessage(RawMessage{ChainID: m.chainID, Payload: payload, ReceivedAtMs: now})
	}
}

// resubscribe issues an eth_subscribe request per configured topic,
// waiting up to perTopicTimeout for an ack. Topics that don't ack in time
// are returned so the caller can report subscriptionRecoveryPartial;
// ingestion keeps running on whatever subscribed successfully rather than
// treating a partial subscribe as fatal.
func (m *WebSocketManager) resubscribe(ctx context.Context, conn *websocket.Conn, endpoint string) []string {
	const perTopicTimeout = 3 * time.Second
	var failed []string

	for _, topic := range m.topics {
		id := m.subscribeIDSeq.Add(1)
		req := map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  "eth_subscribe",
			"params":  []any{"logs", map[string]any{"address": topic.Address, "topics": topic.Topics}},
		}
		body, err := json.Marshal(req)
		if err != nil {
			failed = append(failed, topic.Name)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
			failed = append(failed, topic.Name)
			continue
		}
		if !m.awaitSubscribeAck(ctx, conn, id, perTopicTimeout) {
			failed = append(failed, topic.Name)
		}
	}
	return failed
}

func (m *WebSocketManager) awaitSubscribeAck(ctx context.Context, conn *websocket.Conn, id int64, timeout time.Duration) bool {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var ack struct {
		ID    int64 `json:"id"`
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	for {
		_, payload, err := conn.Read(deadlineCtx)
		if err != nil {
			return false
		}
		if err := json.Unmarshal(payload, &ack); err == nil && ack.ID == id {
			return ack.Error == nil
		}
	}
}

// watchStaleness rotates away from endpoint by forcing the connection
// closed once no message has arrived within the staleness window,
// protecting against a silently black-holed TCP connection that never
// surfaces a read error on its own.
func (m *WebSocketManager) watchStaleness(ctx context.Context, conn *websocket.Conn, endpoint string) {
	ticker := time.NewTicker(m.stalenessWindow / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.IsStale() {
				age := m.clock.NowMs() - m.lastMessageAtMs.Load()
				m.emit(WSEvent{Type: EventStaleConnection, Provider: endpoint, LastMessageAgeMs: age})
				m.log.Warn().Str("chain", m.chainID).Str("endpoint", endpoint).Int64("ageMs", age).Msg("websocket subscription stale, rotating provider")
				conn.Close(websocket.StatusNormalClosure, "stale subscription, rotating")
				return
			}
		}
	}
}

// IsStale reports whether no message has arrived within the staleness
// window.
func (m *WebSocketManager) IsStale() bool {
	last := m.lastMessageAtMs.Load()
	if last == 0 {
		return true
	}
	return m.clock.NowMs()-last > m.stalenessWindow.Milliseconds()
}

// ChainID returns the chain this manager ingests for, used to build the
// health endpoint's per-chain status list.
func (m *WebSocketManager) ChainID() string { return m.chainID }

// LastMessageAtMs returns the timestamp of the last received message, or
// 0 if none has arrived yet.
func (m *WebSocketManager) LastMessageAtMs() int64 { return m.lastMessageAtMs.Load() }

// errRateLimited is a sentinel wrapped into the read-loop error when a
// rate-limit payload (rather than a close frame) is observed, so Run's
// classifyRateLimit(err) path can still apply the exclusion cooldown.
var errRateLimited = errors.New("rate limited")

// classifyRateLimit identifies an endpoint failure as a rate limit under
// any of: JSON-RPC error codes -32005/-32016 (checked via isRateLimitPayload
// at the read site), WebSocket close codes 1008/1013, or a textual
// "rate limit"/"too many requests" pattern in the error.
func classifyRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errRateLimited) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusCode(1008), websocket.StatusCode(1013):
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// isRateLimitPayload peeks a message frame for a JSON-RPC error object
// carrying one of the rate-limit codes, the case where a provider signals
// the condition in-band rather than by closing the connection.
func isRateLimitPayload(payload []byte) bool {
	var env struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &env); err != nil || env.Error == nil {
		return false
	}
	if env.Error.Code == -32005 || env.Error.Code == -32016 {
		return true
	}
	msg := strings.ToLower(env.Error.Message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// extractBlockNumber peeks a logs-notification payload for its block
// number without fully decoding the event, the minimum needed to detect a
// data gap across a reconnect.
func extractBlockNumber(payload []byte) (uint64, bool) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, false
	}
	if env.Params.Result.BlockNumber == "" {
		return 0, false
	}
	block, err := hexToUint64(env.Params.Result.BlockNumber)
	if err != nil {
		return 0, false
	}
	return block, true
}

// backoffWithJitter returns base * mult^(attempt-1), capped at max, with
// +/-25% jitter to avoid a reconnect thundering herd across chains.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	const multiplier = 2.0
	const jitterFraction = 0.25

	d := float64(base)
	for i := 0; i < attempt-1 && d < float64(max); i++ {
		d *= multiplier
	}
	if d > float64(max) || d <= 0 {
		d = float64(max)
	}
	jitter := d * jitterFraction * (2*rand.Float64() - 1)
	return time.Duration(d + jitter)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
