package risk

import (
	"fmt"
	"sync"
	"time"
)

// ProbabilityKey identifies one bucket the tracker maintains a rolling
// outcome list for.
type ProbabilityKey struct {
	Chain      string
	Dex        string
	PathLength int
	HourOfDay  int
	GasBucket  string
}

func (k ProbabilityKey) String() string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", k.Chain, k.Dex, k.PathLength, k.HourOfDay, k.GasBucket)
}

type outcomeRecord struct {
	win      bool
	recordedAt time.Time
}

// ExecutionProbabilityTracker maintains a bounded, time-relevant rolling
// history of win/loss outcomes per key, and derives a win probability
// once enough samples exist.
type ExecutionProbabilityTracker struct {
	maxEntries   int
	relevance    time.Duration
	minSamples   int
	defaultProb  float64

	mu      sync.Mutex
	history map[string][]outcomeRecord
}

// NewExecutionProbabilityTracker applies default bounds: maxEntries=1000,
// relevance=7 days, minSamples=10, defaultProb=0.5.
func NewExecutionProbabilityTracker(maxEntries int, relevance time.Duration, minSamples int) *ExecutionProbabilityTracker {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if relevance <= 0 {
		relevance = 7 * 24 * time.Hour
	}
	if minSamples <= 0 {
		minSamples = 10
	}
	return &ExecutionProbabilityTracker{
		maxEntries:  maxEntries,
		relevance:   relevance,
		minSamples:  minSamples,
		defaultProb: 0.5,
		history:     make(map[string][]outcomeRecord),
	}
}

// RecordOutcome appends a win/loss at "now", evicting entries beyond
// maxEntries (oldest first) or older than the relevance window.
func (t *ExecutionProbabilityTracker) RecordOutcome(key ProbabilityKey, win bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key.String()
	records := t.history[k]
	records = append(records, outcomeRecord{win: win, recordedAt: now})
	records = pruneOutcomes(records, now, t.relevance)
	if len(records) > t.maxEntries {
		records = records[len(records)-t.maxEntries:]
	}
	t.history[k] = records
}

func pruneOutcomes(records []outcomeRecord, now time.Time, relevance time.Duration) []outcomeRecord {
	cutoff := now.Add(-relevance)
	out := records[:0]
	for _, r := range records {
		if r.recordedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// WinProbability returns wins/total for key once total >= minSamples;
// otherwise returns the conservative default (0.5).
func (t *ExecutionProbabilityTracker) WinProbability(key ProbabilityKey, now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := pruneOutcomes(t.history[key.String()], now, t.relevance)
	if len(records) < t.minSamples {
		return t.defaultProb
	}

	wins := 0
	for _, r := range records {
		if r.win {
			wins++
		}
	}
	return float64(wins) / float64(len(records))
}
