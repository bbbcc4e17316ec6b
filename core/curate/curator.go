// Package curate turns AI search output into shard candidates and exposes
// the discover/approve/reject/search/stats operations of the review
// workflow.
package curate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
)

// ShardStore is the shard persistence consumed by the curator
type ShardStore interface {
	CreateStagedShards(campaignID uuid.UUID, rows []*model.Shard) ([]*model.Shard, error)
	SelectShardsByCampaign(campaignID uuid.UUID, filter model.ShardFilter) ([]*model.Shard, error)
	BulkUpdateShardStatuses(campaignID uuid.UUID, ids []string, status model.ShardStatus, reason string) (int, error)
	SelectShardStats(campaignID uuid.UUID) (*model.ShardStats, error)
	SearchApprovedShards(campaignID uuid.UUID, query string, limit int) ([]*model.Shard, error)
}

// ResourceStore resolves resources for stable group source references. A
// missing resource returns nil without error.
type ResourceStore interface {
	SelectResource(campaignID uuid.UUID, id string) (*model.Resource, error)
}

// CampaignResolver resolves a campaign name to its identifier. Campaign
// management itself lives outside the curator.
type CampaignResolver interface {
	ResolveCampaign(name string) (uuid.UUID, bool)
}

// Curator exposes the shard review workflow
type Curator struct {
	shards    ShardStore
	resources ResourceStore
	campaigns CampaignResolver
	log       *slog.Logger
}

// NewCurator creates a curator. resources and campaigns may be nil, group
// source references then fall back to shard metadata and Discover only
// accepts well-formed campaign identifiers.
func NewCurator(shards ShardStore, resources ResourceStore, campaigns CampaignResolver, logger *slog.Logger) (*Curator, error) {
	if shards == nil {
		return nil, helper.NewError("curator validation", fmt.Errorf("shard store is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Curator{
		shards:    shards,
		resources: resources,
		campaigns: campaigns,
		log:       logger,
	}, nil
}

// searchResponse is the expected shape of an AI search response
type searchResponse struct {
	Shards []searchResponseEntry `json:"shards"`
}

type searchResponseEntry struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	EntityType string  `json:"entity_type"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ParseSearchResponse validates the response shape and extracts shard
// candidates. Responses with no usable entries yield an empty list with
// status no_shards_found, not an error, so a conversational caller can keep
// going.
func (c *Curator) ParseSearchResponse(aiResponse string, resource *model.Resource, campaignID uuid.UUID) ([]*model.ShardCandidate, model.DiscoverStatus) {
	var response searchResponse
	if err := json.Unmarshal([]byte(aiResponse), &response); err != nil {
		// A top level array is accepted too
		if err := json.Unmarshal([]byte(aiResponse), &response.Shards); err != nil {
			c.log.Warn("AI search response not parseable", slog.String("error", err.Error()))
			return nil, model.DiscoverStatusNoShardsFound
		}
	}

	var candidates []*model.ShardCandidate
	for _, entry := range response.Shards {
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}

		candidate := &model.ShardCandidate{
			ID:   entry.ID,
			Text: entry.Text,
			Metadata: model.ShardMetadata{
				Source:     entry.Source,
				CampaignID: campaignID,
				EntityType: entry.EntityType,
				Confidence: entry.Confidence,
			},
		}
		if candidate.ID == "" {
			candidate.ID = uuid.NewString()
		}
		if resource != nil {
			candidate.Metadata.FileKey = resource.FileKey
			candidate.Metadata.FileName = resource.Name
			candidate.SourceRef = resource.FileKey
		}

		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		return nil, model.DiscoverStatusNoShardsFound
	}

	return candidates, model.DiscoverStatusOK
}

// ToStorageFormat flattens candidates to persistence rows with status staged
func (c *Curator) ToStorageFormat(candidates []*model.ShardCandidate, campaignID uuid.UUID, resourceID string) []*model.Shard {
	rows := make([]*model.Shard, 0, len(candidates))
	for _, candidate := range candidates {
		shardType := candidate.Metadata.EntityType
		if shardType == "" {
			shardType = "note"
		}

		rows = append(rows, &model.Shard{
			ID:         candidate.ID,
			CampaignID: campaignID,
			ResourceID: resourceID,
			Type:       shardType,
			Text:       candidate.Text,
			Metadata: model.Metadata{
				"file_key":   candidate.Metadata.FileKey,
				"file_name":  candidate.Metadata.FileName,
				"source":     candidate.Metadata.Source,
				"confidence": candidate.Metadata.Confidence,
			},
			Status: model.ShardStatusStaged,
		})
	}
	return rows
}

// Stage persists candidate rows with status staged
func (c *Curator) Stage(candidates []*model.ShardCandidate, campaignID uuid.UUID, resourceID string) ([]*model.Shard, error) {
	return c.shards.CreateStagedShards(campaignID, c.ToStorageFormat(candidates, campaignID, resourceID))
}

// Discover lists shards filtered by status, resource and type, grouped by
// resource. campaignIDOrName that is not a well-formed identifier is
// resolved by name; if resolution fails the result carries status
// campaign_not_found instead of an error.
func (c *Curator) Discover(campaignIDOrName string, filter model.ShardFilter) (*model.DiscoverResult, error) {
	campaignID, err := uuid.Parse(campaignIDOrName)
	if err != nil {
		var ok bool
		if c.campaigns != nil {
			campaignID, ok = c.campaigns.ResolveCampaign(campaignIDOrName)
		}
		if !ok {
			return &model.DiscoverResult{
				Groups: []*model.StagedShardGroup{},
				Total:  0,
				Status: model.DiscoverStatusCampaignNotFound,
			}, nil
		}
	}

	if filter.Status == "" {
		filter.Status = model.ShardStatusStaged
	}

	shards, err := c.shards.SelectShardsByCampaign(campaignID, filter)
	if err != nil {
		return nil, helper.NewError("list shards", err)
	}

	result := &model.DiscoverResult{
		Groups: c.groupByResource(campaignID, shards),
		Total:  len(shards),
		Status: model.DiscoverStatusOK,
	}
	if len(shards) == 0 {
		result.Status = model.DiscoverStatusNoShardsFound
	}

	return result, nil
}

func (c *Curator) groupByResource(campaignID uuid.UUID, shards []*model.Shard) []*model.StagedShardGroup {
	groups := make(map[string]*model.StagedShardGroup)
	var order []string

	for _, shard := range shards {
		group, ok := groups[shard.ResourceID]
		if !ok {
			group = &model.StagedShardGroup{
				ResourceID: shard.ResourceID,
				SourceRef:  c.sourceRef(campaignID, shard),
			}
			groups[shard.ResourceID] = group
			order = append(order, shard.ResourceID)
		}
		group.Shards = append(group.Shards, shard)
	}

	sort.Strings(order)
	result := make([]*model.StagedShardGroup, 0, len(order))
	for _, resourceID := range order {
		result = append(result, groups[resourceID])
	}
	return result
}

// sourceRef prefers the registered resource file key, then the shard's own
// provenance metadata, then the bare resource id
func (c *Curator) sourceRef(campaignID uuid.UUID, shard *model.Shard) string {
	if c.resources != nil {
		resource, err := c.resources.SelectResource(campaignID, shard.ResourceID)
		if err == nil && resource != nil {
			if resource.FileKey != "" {
				return resource.FileKey
			}
			return resource.Name
		}
	}
	if fileKey, ok := shard.Metadata["file_key"].(string); ok && fileKey != "" {
		return fileKey
	}
	return shard.ResourceID
}

// Approve transitions the given staged shards to approved. An empty id list
// is a no-op returning zero, and re-approving an already approved id is
// idempotent.
func (c *Curator) Approve(campaignID uuid.UUID, shardIDs []string) (int, error) {
	if len(shardIDs) == 0 {
		return 0, nil
	}

	count, err := c.shards.BulkUpdateShardStatuses(campaignID, shardIDs, model.ShardStatusApproved, "")
	if err != nil {
		return 0, helper.NewError("approve shards", err)
	}

	c.log.Info("Approved shards",
		slog.String("campaign_id", campaignID.String()),
		slog.Int("approved", count),
	)

	return count, nil
}

// Reject transitions the given staged shards to rejected. Rejected shards
// are retained with their reason for audit.
func (c *Curator) Reject(campaignID uuid.UUID, shardIDs []string, reason string) (int, error) {
	if len(shardIDs) == 0 {
		return 0, nil
	}

	count, err := c.shards.BulkUpdateShardStatuses(campaignID, shardIDs, model.ShardStatusRejected, reason)
	if err != nil {
		return 0, helper.NewError("reject shards", err)
	}

	c.log.Info("Rejected shards",
		slog.String("campaign_id", campaignID.String()),
		slog.Int("rejected", count),
	)

	return count, nil
}

// Search queries approved shards only
func (c *Curator) Search(campaignID uuid.UUID, query string, limit int) ([]*model.Shard, error) {
	return c.shards.SearchApprovedShards(campaignID, query, limit)
}

// Stats aggregates per-campaign shard counts
func (c *Curator) Stats(campaignID uuid.UUID) (*model.ShardStats, error) {
	return c.shards.SelectShardStats(campaignID)
}
