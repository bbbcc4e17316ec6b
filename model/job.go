package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an extraction job
type JobStatus string

const (
	JobStatusNone        JobStatus = "none"
	JobStatusPending     JobStatus = "pending"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusRateLimited JobStatus = "rate_limited"
)

// Active reports whether the status blocks a new job for the same resource
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Terminal reports whether the status is final
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusRateLimited
}

// ExtractionJob tracks one extraction run per (CampaignID, ResourceID).
// At most one job per pair is active at a time.
type ExtractionJob struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	ResourceID string    `json:"resource_id"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobState is the polling view of an extraction job
type JobState struct {
	InQueue bool      `json:"in_queue"`
	Status  JobStatus `json:"status"`
}
