package model

import (
	"time"

	"github.com/google/uuid"
)

// Partition is a logical zone of the content store. Only approved content is
// searchable.
type Partition string

const (
	PartitionStaging  Partition = "staging"
	PartitionApproved Partition = "approved"
	PartitionRejected Partition = "rejected"
)

// ContentSourceType marks how a content object entered the store
type ContentSourceType string

const (
	ContentSourceUserAuthored ContentSourceType = "user_authored"
	ContentSourceAIDetected   ContentSourceType = "ai_detected"
)

// ContentObject is the JSON document stored at a deterministic content store
// key. For a given ID at most one partition holds the authoritative copy
// after a completed move.
type ContentObject struct {
	ID              string            `json:"id"`
	CampaignID      uuid.UUID         `json:"campaign_id"`
	Kind            string            `json:"kind"`
	Label           string            `json:"label"`
	Text            string            `json:"text"`
	NoteType        string            `json:"note_type,omitempty"`
	SourceType      ContentSourceType `json:"source_type"`
	SourceMessageID string            `json:"source_message_id,omitempty"`
	Confidence      float64           `json:"confidence,omitempty"`
	Embedding       []float32         `json:"embedding,omitempty"`
	Metadata        Metadata          `json:"metadata,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ContentSearchResult is one hit from an approved-partition search
type ContentSearchResult struct {
	ID       string  `json:"id"`
	Key      string  `json:"key"`
	Score    float64 `json:"score"`
	Kind     string  `json:"kind"`
	NoteType string  `json:"note_type,omitempty"`
	Label    string  `json:"label"`
	Text     string  `json:"text"`
}
