package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Batcher accumulates fields for a single stream and flushes either when
// maxBatch entries have queued or on the next tick of a fixed maxWait
// ticker, whichever comes first. The ticker runs from construction and
// is not restarted by the first unflushed entry, so an entry waits at
// most maxWait and often less.
// A synchronous Flush is always run from Stop so no buffered entry is
// lost on shutdown.
type Batcher struct {
	bus    *Bus
	stream string

	maxBatch int
	maxWait  time.Duration

	mu      sync.Mutex
	pending []map[string]any

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBatcher constructs a Batcher against stream, flushing at maxBatch
// entries or maxWait elapsed.
func NewBatcher(b *Bus, stream string, maxBatch int, maxWait time.Duration) *Batcher {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	if maxWait <= 0 {
		maxWait = 100 * time.Millisecond
	}
	batcher := &Batcher{
		bus:      b,
		stream:   stream,
		maxBatch: maxBatch,
		maxWait:  maxWait,
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go batcher.run()
	return batcher
}

// Add queues one entry. If the queue reaches maxBatch, a flush is
// signaled immediately rather than waiting for the timer.
func (b *Batcher) Add(fields map[string]any) {
	b.mu.Lock()
	b.pending = append(b.pending, fields)
	full := len(b.pending) >= b.maxBatch
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

func (b *Batcher) run() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.maxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.flushCh:
			b.flush()
		case <-b.stopCh:
			b.flush()
			return
		}
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, fields := range batch {
		if _, err := b.bus.Produce(ctx, b.stream, fields); err != nil {
			raw := make([]map[string]string, 0, len(batch))
			for _, f := range batch {
				raw = append(raw, stringifyFields(f))
			}
			b.bus.RecordDeadLetter(b.stream, raw, err.Error())
			return
		}
	}
}

// Stop flushes any remaining queued entries synchronously and stops the
// background flush loop.
func (b *Batcher) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

func stringifyFields(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = toString(v)
		}
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
