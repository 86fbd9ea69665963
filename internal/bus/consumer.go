package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one message and returns an error only for transient
// failures; a non-nil error leaves the message unacked for redelivery.
type Handler func(ctx context.Context, msg Message) error

// StreamConsumer pulls from one (stream, group) pair in a loop, dispatches
// to Handler, and acks on success. It exposes Pause/Resume so a
// downstream backpressure watermark can throttle ingestion without
// tearing down the consumer goroutine.
type StreamConsumer struct {
	bus          *Bus
	stream       string
	group        string
	consumerName string
	handler      Handler
	log          zerolog.Logger

	batchSize int
	blockFor  time.Duration

	paused   int32 // atomic bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewStreamConsumer constructs a StreamConsumer. Call Start to begin
// pulling messages.
func NewStreamConsumer(b *Bus, stream, group, consumerName string, batchSize int, blockFor time.Duration, handler Handler, log zerolog.Logger) *StreamConsumer {
	if batchSize <= 0 {
		batchSize = 20
	}
	if blockFor <= 0 {
		blockFor = 500 * time.Millisecond
	}
	return &StreamConsumer{
		bus:          b,
		stream:       stream,
		group:        group,
		consumerName: consumerName,
		handler:      handler,
		log:          log,
		batchSize:    batchSize,
		blockFor:     blockFor,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the consume/handle/ack loop in a background goroutine. It
// creates the consumer group if it does not already exist.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := c.bus.CreateGroup(ctx, c.stream, c.group, "0"); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

func (c *StreamConsumer) run(ctx context.Context) {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if c.IsPaused() {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		msgs, err := c.bus.Consume(ctx, c.stream, c.group, c.consumerName, int64(c.batchSize), c.blockFor)
		if err != nil {
			c.log.Error().Err(err).Str("stream", c.stream).Msg("consume failed")
			time.Sleep(200 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			if err := c.handler(ctx, msg); err != nil {
				c.log.Warn().Err(err).Str("stream", c.stream).Str("id", msg.ID).Msg("handler failed, leaving unacked")
				continue
			}
			if err := c.bus.Ack(ctx, c.stream, c.group, msg.ID); err != nil {
				c.log.Error().Err(err).Str("stream", c.stream).Str("id", msg.ID).Msg("ack failed")
			}
		}
	}
}

// Pause stops pulling new batches without tearing down the goroutine.
func (c *StreamConsumer) Pause() {
	atomic.StoreInt32(&c.paused, 1)
}

// Resume resumes pulling new batches.
func (c *StreamConsumer) Resume() {
	atomic.StoreInt32(&c.paused, 0)
}

// IsPaused reports the current pause state.
func (c *StreamConsumer) IsPaused() bool {
	return atomic.LoadInt32(&c.paused) == 1
}

// Stop signals the run loop to exit and blocks until it has. A second
// call is a no-op.
func (c *StreamConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
}

// BackpressureGate couples a StreamConsumer's pause state to a pending
// depth: Check pauses the consumer once pending crosses highWatermark and
// resumes it only once pending drops back to lowWatermark, avoiding the
// flap that a single threshold produces.
type BackpressureGate struct {
	consumer      *StreamConsumer
	highWatermark int64
	lowWatermark  int64
}

// NewBackpressureGate constructs a gate for consumer with the given
// high/low watermarks. high must be greater than low.
func NewBackpressureGate(consumer *StreamConsumer, low, high int64) *BackpressureGate {
	return &BackpressureGate{consumer: consumer, highWatermark: high, lowWatermark: low}
}

// Check inspects the current pending depth and pauses/resumes the
// consumer accordingly.
func (g *BackpressureGate) Check(pending int64) {
	switch {
	case pending >= g.highWatermark:
		g.consumer.Pause()
	case pending <= g.lowWatermark:
		g.consumer.Resume()
	}
}
