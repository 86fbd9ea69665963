// Package bus implements the event bus contract: a persisted,
// partitioned message log with consumer groups, built on Redis Streams
// via github.com/redis/go-redis/v9 (see DESIGN.md for why this adds a
// new dependency rather than reusing an existing one).
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrBackendUnavailable is returned by Produce once the retry budget for
// a batch flush is exhausted.
var ErrBackendUnavailable = errors.New("bus: backend unavailable")

// Stream names, part of the external contract.
const (
	StreamPriceUpdates        = "stream:price-updates"
	StreamSwapEvents          = "stream:swap-events"
	StreamOpportunities       = "stream:opportunities"
	StreamWhaleAlerts         = "stream:whale-alerts"
	StreamVolumeAggregates    = "stream:volume-aggregates"
	StreamHealth              = "stream:health"
	StreamExecutionRequests   = "stream:execution-requests"
	StreamPendingOpportunities = "stream:pending-opportunities"
	StreamCircuitBreaker      = "stream:circuit-breaker"
	StreamSystemFailover      = "stream:system-failover"
)

// Consumer group names, part of the external contract.
const (
	GroupExecutionEngine     = "execution-engine-group"
	GroupCrossChainDetector  = "cross-chain-detector-group"
	GroupAnalytics           = "analytics-group"
)

// Message is one entry read back from a stream: a server-assigned id and
// its field set.
type Message struct {
	ID     string
	Fields map[string]string
}

// DeadLetter records a batch that could not be flushed after the retry
// budget was exhausted, tagged by stream for operator inspection.
type DeadLetter struct {
	Stream    string
	Fields    []map[string]string
	Reason    string
	DroppedAt time.Time
}

// Bus wraps a Redis client with the produce/consume/ack/group contract,
// plus its resilience behaviors: streamInfo/pending return empty
// defaults rather than erroring on a missing stream, and transient
// errors are retried with backoff.
type Bus struct {
	rdb *redis.Client
	log zerolog.Logger

	retryBudget   int
	retryBaseWait time.Duration

	deadLetterMu sync.Mutex
	deadLetters  []DeadLetter
}

// New constructs a Bus against the given Redis address.
func New(addr string, log zerolog.Logger) *Bus {
	return &Bus{
		rdb:           redis.NewClient(&redis.Options{Addr: addr}),
		log:           log,
		retryBudget:   5,
		retryBaseWait: 20 * time.Millisecond,
		deadLetters:   make([]DeadLetter, 0),
	}
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// Produce appends one entry to streamName, returning the server-assigned
// id. Retries transient errors with exponential backoff up to the retry
// budget; beyond that, returns ErrBackendUnavailable to the caller. Most
// callers should prefer the Batcher instead of calling Produce directly
// per-message.
func (b *Bus) Produce(ctx context.Context, streamName string, fields map[string]any) (string, error) {
	var lastErr error
	wait := b.retryBaseWait
	for attempt := 0; attempt <= b.retryBudget; attempt++ {
		id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: streamName,
			Values: fields,
		}).Result()
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt == b.retryBudget {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	b.log.Error().Err(lastErr).Str("stream", streamName).Msg("produce retry budget exhausted")
	return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
}

// RecordDeadLetter appends a dropped batch to the in-memory dead-letter
// list, tagged by stream, for operator inspection.
func (b *Bus) RecordDeadLetter(stream string, fields []map[string]string, reason string) {
	b.deadLetterMu.Lock()
	defer b.deadLetterMu.Unlock()
	b.deadLetters = append(b.deadLetters, DeadLetter{
		Stream:    stream,
		Fields:    fields,
		Reason:    reason,
		DroppedAt: time.Now(),
	})
	b.log.Warn().Str("stream", stream).Int("count", len(fields)).Str("reason", reason).Msg("batch dropped to dead-letter list")
}

// DeadLetters returns a snapshot of dropped batches.
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadLetterMu.Lock()
	defer b.deadLetterMu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// CreateGroup is idempotent: if the group already exists, or the stream
// itself does not exist yet ("no such key"), it succeeds without error.
func (b *Bus) CreateGroup(ctx context.Context, streamName, groupName, startID string) error {
	if startID == "" {
		startID = "$"
	}
	err := b.rdb.XGroupCreateMkStream(ctx, streamName, groupName, startID).Err()
	if err == nil {
		return nil
	}
	if isBusyGroupErr(err) || isNoSuchKeyErr(err) {
		return nil
	}
	return fmt.Errorf("bus: create group %s/%s: %w", streamName, groupName, err)
}

// Consume blocks until one or more pending messages appear on
// (streamName, groupName) for consumerName, or blockMs elapses.
func (b *Bus) Consume(ctx context.Context, streamName, groupName, consumerName string, maxCount int64, blockMs time.Duration) ([]Message, error) {
	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumerName,
		Streams:  []string{streamName, ">"},
		Count:    maxCount,
		Block:    blockMs,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || isNoSuchKeyErr(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bus: consume %s/%s: %w", streamName, groupName, err)
	}

	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			fields := make(map[string]string, len(entry.Values))
			for k, v := range entry.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			out = append(out, Message{ID: entry.ID, Fields: fields})
		}
	}
	return out, nil
}

// Ack removes id from the group's pending entries list. Idempotent: a
// repeat ack of an already-acked id is a no-op success.
func (b *Bus) Ack(ctx context.Context, streamName, groupName, id string) error {
	if err := b.rdb.XAck(ctx, streamName, groupName, id).Err(); err != nil {
		if isNoSuchKeyErr(err) {
			return nil
		}
		return fmt.Errorf("bus: ack %s/%s/%s: %w", streamName, groupName, id, err)
	}
	return nil
}

// StreamInfo returns the stream's length, or 0 if the stream does not
// exist.
func (b *Bus) StreamInfo(ctx context.Context, streamName string) (length int64, err error) {
	info, err := b.rdb.XLen(ctx, streamName).Result()
	if err != nil {
		if isNoSuchKeyErr(err) {
			return 0, nil
		}
		return 0, err
	}
	return info, nil
}

// Pending returns the count of pending (unacked) entries for a group, or
// 0 if the stream/group does not exist.
func (b *Bus) Pending(ctx context.Context, streamName, groupName string) (int64, error) {
	res, err := b.rdb.XPending(ctx, streamName, groupName).Result()
	if err != nil {
		if isNoSuchKeyErr(err) {
			return 0, nil
		}
		return 0, err
	}
	if res == nil {
		return 0, nil
	}
	return res.Count, nil
}

func isNoSuchKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}
