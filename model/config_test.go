package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultDedupConfig(t *testing.T) {
	config := DefaultDedupConfig()

	assert.InDelta(t, 0.9, config.HighConfidenceThreshold, 0.0001)
	assert.InDelta(t, 0.75, config.LowConfidenceThreshold, 0.0001)
	assert.Equal(t, 10, config.MaxCandidates)
	assert.Greater(t, config.HighConfidenceThreshold, config.LowConfidenceThreshold)
}

func TestDefaultPollConfig(t *testing.T) {
	config := DefaultPollConfig()

	assert.Equal(t, 5, config.BatchSize)
	assert.Greater(t, config.Interval, config.BatchDelay, "Expected batches to be staggered within the interval")
	assert.Greater(t, config.FallbackInterval, config.Interval, "Expected the fallback scan to be slower than the base cadence")
}
