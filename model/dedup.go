package model

import (
	"time"

	"github.com/google/uuid"
)

// DedupStatus is the review state of a deduplication entry
type DedupStatus string

const (
	DedupStatusPending  DedupStatus = "pending"
	DedupStatusResolved DedupStatus = "resolved"
)

// DedupCandidate is one possible duplicate inside a deduplication entry
type DedupCandidate struct {
	CandidateEntityID string      `json:"candidate_entity_id"`
	Score             float64     `json:"score"`
	Status            DedupStatus `json:"status"`
}

// DeduplicationEntry queues medium-confidence duplicate candidates of one
// entity for explicit review. At most one pending entry exists per
// (CampaignID, EntityID) at a time.
type DeduplicationEntry struct {
	ID            uuid.UUID        `json:"id"`
	CampaignID    uuid.UUID        `json:"campaign_id"`
	EntityID      string           `json:"entity_id"`
	Candidates    []DedupCandidate `json:"candidates"`
	OverallStatus DedupStatus      `json:"overall_status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// DedupEntryFilter narrows a deduplication entry listing
type DedupEntryFilter struct {
	CampaignID uuid.UUID
	EntityID   string
	Status     DedupStatus
	Limit      int
}

// DedupEvaluation is the result of evaluating one entity against the index
type DedupEvaluation struct {
	HighConfidenceMatches []EntityMatch `json:"high_confidence_matches"`
	PendingEntryID        *uuid.UUID    `json:"pending_entry_id,omitempty"`
}
