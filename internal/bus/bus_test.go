package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return New(mr.Addr(), zerolog.Nop()), mr
}

func TestBus_ProduceConsumeAck(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.CreateGroup(ctx, StreamSwapEvents, GroupAnalytics, "0"))

	_, err := b.Produce(ctx, StreamSwapEvents, map[string]any{"pair": "0xabc"})
	require.NoError(t, err)

	msgs, err := b.Consume(ctx, StreamSwapEvents, GroupAnalytics, "consumer-1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "0xabc", msgs[0].Fields["pair"])

	require.NoError(t, b.Ack(ctx, StreamSwapEvents, GroupAnalytics, msgs[0].ID))

	pending, err := b.Pending(ctx, StreamSwapEvents, GroupAnalytics)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestBus_StreamInfoMissingStreamReturnsZero(t *testing.T) {
	b, _ := newTestBus(t)
	length, err := b.StreamInfo(context.Background(), "stream:does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestBus_PendingMissingGroupReturnsZero(t *testing.T) {
	b, _ := newTestBus(t)
	pending, err := b.Pending(context.Background(), "stream:does-not-exist", "no-group")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestBus_CreateGroupIsIdempotent(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, b.CreateGroup(ctx, StreamPriceUpdates, GroupCrossChainDetector, "0"))
	require.NoError(t, b.CreateGroup(ctx, StreamPriceUpdates, GroupCrossChainDetector, "0"))
}

func TestBatcher_FlushesOnMaxBatch(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, b.CreateGroup(ctx, StreamPriceUpdates, GroupAnalytics, "0"))

	batcher := NewBatcher(b, StreamPriceUpdates, 3, time.Hour)
	defer batcher.Stop()

	batcher.Add(map[string]any{"i": "1"})
	batcher.Add(map[string]any{"i": "2"})
	batcher.Add(map[string]any{"i": "3"})

	require.Eventually(t, func() bool {
		length, _ := b.StreamInfo(ctx, StreamPriceUpdates)
		return length == 3
	}, time.Second, 10*time.Millisecond)
}

func TestBatcher_FlushesOnStop(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	batcher := NewBatcher(b, StreamWhaleAlerts, 100, time.Hour)
	batcher.Add(map[string]any{"i": "1"})
	batcher.Stop()

	length, err := b.StreamInfo(ctx, StreamWhaleAlerts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestBackpressureGate_PausesAndResumesOnWatermarks(t *testing.T) {
	b, _ := newTestBus(t)
	consumer := NewStreamConsumer(b, StreamSwapEvents, GroupAnalytics, "c1", 10, 10*time.Millisecond, func(ctx context.Context, msg Message) error {
		return nil
	}, zerolog.Nop())
	gate := NewBackpressureGate(consumer, 10, 100)

	gate.Check(150)
	assert.True(t, consumer.IsPaused())

	gate.Check(50)
	assert.True(t, consumer.IsPaused(), "pending between watermarks should not resume")

	gate.Check(5)
	assert.False(t, consumer.IsPaused())
}

func TestStreamConsumer_ProcessesAndAcks(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := b.Produce(ctx, StreamSwapEvents, map[string]any{"pair": "0xdef"})
	require.NoError(t, err)

	received := make(chan Message, 1)
	consumer := NewStreamConsumer(b, StreamSwapEvents, GroupExecutionEngine, "c1", 10, 20*time.Millisecond, func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}, zerolog.Nop())

	require.NoError(t, consumer.Start(ctx))
	defer consumer.Stop()

	select {
	case msg := <-received:
		assert.Equal(t, "0xdef", msg.Fields["pair"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.Eventually(t, func() bool {
		pending, _ := b.Pending(ctx, StreamSwapEvents, GroupExecutionEngine)
		return pending == 0
	}, time.Second, 10*time.Millisecond)
}
