package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwapWhaleTracker_IgnoresBelowThreshold(t *testing.T) {
	tr := NewSwapWhaleTracker(WhaleTrackerConfig{ThresholdUsd: 100_000})
	tr.Observe("weth:usdc", 50_000, true)

	_, ok := tr.LatestSignal("weth:usdc")
	assert.False(t, ok)
}

func TestSwapWhaleTracker_RecordsSignalAboveThreshold(t *testing.T) {
	tr := NewSwapWhaleTracker(WhaleTrackerConfig{ThresholdUsd: 100_000})
	tr.Observe("weth:usdc", 250_000, true)

	signal, ok := tr.LatestSignal("weth:usdc")
	assert.True(t, ok)
	assert.Equal(t, "up", signal.Direction)
	assert.InDelta(t, 2.5, signal.Multiple, 0.001)
}

func TestSwapWhaleTracker_SellSideIsDown(t *testing.T) {
	tr := NewSwapWhaleTracker(WhaleTrackerConfig{ThresholdUsd: 100_000})
	tr.Observe("weth:usdc", 150_000, false)

	signal, ok := tr.LatestSignal("weth:usdc")
	assert.True(t, ok)
	assert.Equal(t, "down", signal.Direction)
}
