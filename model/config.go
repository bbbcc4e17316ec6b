package model

import "time"

// DedupConfig represents configuration for duplicate evaluation
type DedupConfig struct {
	// Candidates scoring at or above HighConfidenceThreshold are reported
	// directly as matches
	HighConfidenceThreshold float64 `json:"high_confidence_threshold"`
	// Candidates scoring in [LowConfidenceThreshold, HighConfidenceThreshold)
	// are queued for review
	LowConfidenceThreshold float64 `json:"low_confidence_threshold"`
	// Maximum nearest neighbors fetched from the index per evaluation
	MaxCandidates int `json:"max_candidates"`
}

// DefaultDedupConfig returns a sensible default configuration
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		HighConfidenceThreshold: 0.9,
		LowConfidenceThreshold:  0.75,
		MaxCandidates:           10,
	}
}

// PollConfig represents configuration for extraction job status polling
type PollConfig struct {
	// BatchSize limits how many jobs are checked per batch
	BatchSize int `json:"batch_size"`
	// BatchDelay staggers consecutive batches to avoid bursts
	BatchDelay time.Duration `json:"batch_delay"`
	// Interval is the base polling cadence
	Interval time.Duration `json:"interval"`
	// FallbackInterval is the slow scan catching missed completion events
	FallbackInterval time.Duration `json:"fallback_interval"`
}

// DefaultPollConfig returns a sensible default configuration
func DefaultPollConfig() PollConfig {
	return PollConfig{
		BatchSize:        5,
		BatchDelay:       200 * time.Millisecond,
		Interval:         2 * time.Second,
		FallbackInterval: 30 * time.Second,
	}
}
