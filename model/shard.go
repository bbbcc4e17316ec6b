package model

import (
	"time"

	"github.com/google/uuid"
)

// ShardStatus is the review state of a shard. Approved and rejected are
// terminal, there is no edge back to staged.
type ShardStatus string

const (
	ShardStatusStaged   ShardStatus = "staged"
	ShardStatusApproved ShardStatus = "approved"
	ShardStatusRejected ShardStatus = "rejected"
	// ShardStatusAll is a filter value, never stored
	ShardStatusAll ShardStatus = "all"
)

// Shard is a discrete, independently approvable knowledge fragment derived
// from a resource or conversation.
type Shard struct {
	ID         string      `json:"id"`
	CampaignID uuid.UUID   `json:"campaign_id"`
	ResourceID string      `json:"resource_id"`
	Type       string      `json:"shard_type"`
	Text       string      `json:"text"`
	Metadata   Metadata    `json:"metadata,omitempty"`
	Status     ShardStatus `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ShardCandidate is a shard parsed out of an AI search response before it is
// flattened into a staged persistence row.
type ShardCandidate struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Metadata  ShardMetadata `json:"metadata"`
	SourceRef string        `json:"source_ref"`
}

// ShardMetadata carries the provenance attributes of a shard candidate
type ShardMetadata struct {
	FileKey    string    `json:"file_key"`
	FileName   string    `json:"file_name"`
	Source     string    `json:"source"`
	CampaignID uuid.UUID `json:"campaign_id"`
	EntityType string    `json:"entity_type"`
	Confidence float64   `json:"confidence"`
}

// StagedShardGroup groups shards of one resource for display. It is derived
// on every discovery call, never persisted.
type StagedShardGroup struct {
	ResourceID string   `json:"resource_id"`
	SourceRef  string   `json:"source_ref"`
	Shards     []*Shard `json:"shards"`
}

// ShardFilter narrows a shard listing
type ShardFilter struct {
	Status     ShardStatus
	ResourceID string
	ShardType  string
	Limit      int
}

// ShardStats aggregates per-campaign shard counts
type ShardStats struct {
	Total    int            `json:"total"`
	Staged   int            `json:"staged"`
	Approved int            `json:"approved"`
	Rejected int            `json:"rejected"`
	ByType   map[string]int `json:"by_type"`
}

// DiscoverStatus describes the outcome of a discovery call
type DiscoverStatus string

const (
	DiscoverStatusOK               DiscoverStatus = "ok"
	DiscoverStatusNoShardsFound    DiscoverStatus = "no_shards_found"
	DiscoverStatusCampaignNotFound DiscoverStatus = "campaign_not_found"
)

// DiscoverResult is the grouped projection returned by shard discovery
type DiscoverResult struct {
	Groups []*StagedShardGroup `json:"groups"`
	Total  int                 `json:"total"`
	Status DiscoverStatus      `json:"status"`
}
