package curate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShardStore struct {
	shards map[string]*model.Shard
}

func newFakeShardStore() *fakeShardStore {
	return &fakeShardStore{shards: map[string]*model.Shard{}}
}

func (f *fakeShardStore) CreateStagedShards(campaignID uuid.UUID, rows []*model.Shard) ([]*model.Shard, error) {
	var inserted []*model.Shard
	for _, row := range rows {
		if _, ok := f.shards[row.ID]; ok {
			continue
		}
		row.CampaignID = campaignID
		row.Status = model.ShardStatusStaged
		f.shards[row.ID] = row
		inserted = append(inserted, row)
	}
	return inserted, nil
}

func (f *fakeShardStore) SelectShardsByCampaign(campaignID uuid.UUID, filter model.ShardFilter) ([]*model.Shard, error) {
	var result []*model.Shard
	for _, shard := range f.shards {
		if shard.CampaignID != campaignID {
			continue
		}
		if filter.Status != "" && filter.Status != model.ShardStatusAll && shard.Status != filter.Status {
			continue
		}
		if filter.ResourceID != "" && shard.ResourceID != filter.ResourceID {
			continue
		}
		if filter.ShardType != "" && shard.Type != filter.ShardType {
			continue
		}
		result = append(result, shard)
	}
	return result, nil
}

func (f *fakeShardStore) BulkUpdateShardStatuses(campaignID uuid.UUID, ids []string, status model.ShardStatus, reason string) (int, error) {
	count := 0
	for _, id := range ids {
		shard, ok := f.shards[id]
		if !ok || shard.CampaignID != campaignID {
			continue
		}
		if shard.Status != model.ShardStatusStaged && shard.Status != status {
			continue
		}
		shard.Status = status
		if reason != "" {
			shard.Reason = reason
		}
		count++
	}
	return count, nil
}

func (f *fakeShardStore) SelectShardStats(campaignID uuid.UUID) (*model.ShardStats, error) {
	stats := &model.ShardStats{ByType: map[string]int{}}
	for _, shard := range f.shards {
		if shard.CampaignID != campaignID {
			continue
		}
		stats.Total++
		stats.ByType[shard.Type]++
		switch shard.Status {
		case model.ShardStatusStaged:
			stats.Staged++
		case model.ShardStatusApproved:
			stats.Approved++
		case model.ShardStatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

func (f *fakeShardStore) SearchApprovedShards(campaignID uuid.UUID, query string, limit int) ([]*model.Shard, error) {
	var result []*model.Shard
	for _, shard := range f.shards {
		if shard.CampaignID == campaignID && shard.Status == model.ShardStatusApproved {
			result = append(result, shard)
		}
	}
	return result, nil
}

type fakeResourceStore struct {
	resources map[string]*model.Resource
}

func (f *fakeResourceStore) SelectResource(campaignID uuid.UUID, id string) (*model.Resource, error) {
	return f.resources[id], nil
}

type fakeCampaigns struct {
	byName map[string]uuid.UUID
}

func (f *fakeCampaigns) ResolveCampaign(name string) (uuid.UUID, bool) {
	id, ok := f.byName[name]
	return id, ok
}

func newTestCurator(t *testing.T, shards *fakeShardStore, campaigns CampaignResolver) *Curator {
	t.Helper()

	curator, err := NewCurator(shards, &fakeResourceStore{resources: map[string]*model.Resource{
		"res_session_1": {ID: "res_session_1", Name: "Session 1", FileKey: "uploads/session-1.md"},
	}}, campaigns, nil)
	require.NoError(t, err)

	return curator
}

func TestCuratorParseSearchResponse(t *testing.T) {
	campaignID := uuid.New()
	curator := newTestCurator(t, newFakeShardStore(), nil)
	resource := &model.Resource{ID: "res_session_1", Name: "Session 1", FileKey: "uploads/session-1.md"}

	t.Run("Valid response yields candidates", func(t *testing.T) {
		response := `{"shards": [
			{"id": "shard_1", "text": "The harbor shelters fishing boats", "entity_type": "locations", "confidence": 0.9},
			{"text": "Captain Holt runs the watch", "entity_type": "npcs", "confidence": 0.8}
		]}`

		candidates, status := curator.ParseSearchResponse(response, resource, campaignID)
		assert.Equal(t, model.DiscoverStatusOK, status)
		require.Len(t, candidates, 2)
		assert.Equal(t, "shard_1", candidates[0].ID)
		assert.NotEmpty(t, candidates[1].ID, "Expected a generated id for candidates without one")
		assert.Equal(t, "uploads/session-1.md", candidates[0].Metadata.FileKey)
		assert.Equal(t, campaignID, candidates[0].Metadata.CampaignID)
	})

	t.Run("Top level array is accepted", func(t *testing.T) {
		response := `[{"text": "A silver mine east of town", "entity_type": "locations"}]`

		candidates, status := curator.ParseSearchResponse(response, resource, campaignID)
		assert.Equal(t, model.DiscoverStatusOK, status)
		assert.Len(t, candidates, 1)
	})

	t.Run("Response without usable entries is not an error", func(t *testing.T) {
		candidates, status := curator.ParseSearchResponse(`{"shards": [{"text": "   "}]}`, resource, campaignID)
		assert.Equal(t, model.DiscoverStatusNoShardsFound, status)
		assert.Empty(t, candidates)
	})

	t.Run("Unparseable response is not an error", func(t *testing.T) {
		candidates, status := curator.ParseSearchResponse("no shards here, sorry", resource, campaignID)
		assert.Equal(t, model.DiscoverStatusNoShardsFound, status)
		assert.Empty(t, candidates)
	})
}

func TestCuratorToStorageFormat(t *testing.T) {
	campaignID := uuid.New()
	curator := newTestCurator(t, newFakeShardStore(), nil)

	rows := curator.ToStorageFormat([]*model.ShardCandidate{
		{ID: "shard_1", Text: "The harbor", Metadata: model.ShardMetadata{EntityType: "locations", FileKey: "uploads/session-1.md", Confidence: 0.9}},
		{ID: "shard_2", Text: "A rumor", Metadata: model.ShardMetadata{}},
	}, campaignID, "res_session_1")

	require.Len(t, rows, 2)
	assert.Equal(t, model.ShardStatusStaged, rows[0].Status)
	assert.Equal(t, campaignID, rows[0].CampaignID)
	assert.Equal(t, "res_session_1", rows[0].ResourceID)
	assert.Equal(t, "locations", rows[0].Type)
	assert.Equal(t, "uploads/session-1.md", rows[0].Metadata["file_key"])
	assert.Equal(t, "note", rows[1].Type, "Expected untyped candidates to default to note")
}

func TestCuratorDiscover(t *testing.T) {
	campaignID := uuid.New()
	shards := newFakeShardStore()
	campaigns := &fakeCampaigns{byName: map[string]uuid.UUID{"Saltmarsh": campaignID}}
	curator := newTestCurator(t, shards, campaigns)

	_, err := curator.Stage([]*model.ShardCandidate{
		{ID: "shard_1", Text: "The harbor", Metadata: model.ShardMetadata{EntityType: "locations"}},
		{ID: "shard_2", Text: "Captain Holt", Metadata: model.ShardMetadata{EntityType: "npcs"}},
	}, campaignID, "res_session_1")
	require.NoError(t, err)
	_, err = curator.Stage([]*model.ShardCandidate{
		{ID: "shard_3", Text: "The mine", Metadata: model.ShardMetadata{EntityType: "locations"}},
	}, campaignID, "res_session_2")
	require.NoError(t, err)

	t.Run("Discover groups staged shards by resource", func(t *testing.T) {
		result, err := curator.Discover(campaignID.String(), model.ShardFilter{})
		assert.NoError(t, err, "Expected Discover to not return an error")
		require.NotNil(t, result)
		assert.Equal(t, model.DiscoverStatusOK, result.Status)
		assert.Equal(t, 3, result.Total)
		require.Len(t, result.Groups, 2)
		assert.Equal(t, "res_session_1", result.Groups[0].ResourceID)
		assert.Equal(t, "uploads/session-1.md", result.Groups[0].SourceRef, "Expected the resource file key as source reference")
		assert.Len(t, result.Groups[0].Shards, 2)
		assert.Equal(t, "res_session_2", result.Groups[1].ResourceID)
		assert.Equal(t, "res_session_2", result.Groups[1].SourceRef, "Expected fallback to the resource id")
	})

	t.Run("Discover resolves campaign names", func(t *testing.T) {
		result, err := curator.Discover("Saltmarsh", model.ShardFilter{})
		assert.NoError(t, err)
		assert.Equal(t, model.DiscoverStatusOK, result.Status)
		assert.Equal(t, 3, result.Total)
	})

	t.Run("Unknown campaign yields a structured result, not an error", func(t *testing.T) {
		result, err := curator.Discover("Curse of the Azure Bonds", model.ShardFilter{})
		assert.NoError(t, err, "Expected unknown campaign to not return an error")
		require.NotNil(t, result)
		assert.Equal(t, model.DiscoverStatusCampaignNotFound, result.Status)
		assert.Empty(t, result.Groups)
	})

	t.Run("Discover filters by type", func(t *testing.T) {
		result, err := curator.Discover(campaignID.String(), model.ShardFilter{ShardType: "npcs"})
		assert.NoError(t, err)
		assert.Equal(t, 1, result.Total)
	})

	t.Run("Campaign without shards yields no_shards_found", func(t *testing.T) {
		result, err := curator.Discover(uuid.New().String(), model.ShardFilter{})
		assert.NoError(t, err)
		assert.Equal(t, model.DiscoverStatusNoShardsFound, result.Status)
		assert.Equal(t, 0, result.Total)
	})
}

func TestCuratorApproveReject(t *testing.T) {
	campaignID := uuid.New()
	shards := newFakeShardStore()
	curator := newTestCurator(t, shards, nil)

	_, err := curator.Stage([]*model.ShardCandidate{
		{ID: "shard_1", Text: "The harbor"},
		{ID: "shard_2", Text: "Captain Holt"},
		{ID: "shard_3", Text: "The mine"},
	}, campaignID, "res_session_1")
	require.NoError(t, err)

	t.Run("Approve transitions staged shards", func(t *testing.T) {
		count, err := curator.Approve(campaignID, []string{"shard_1", "shard_2"})
		assert.NoError(t, err, "Expected Approve to not return an error")
		assert.Equal(t, 2, count)
	})

	t.Run("Re-approving is idempotent", func(t *testing.T) {
		count, err := curator.Approve(campaignID, []string{"shard_1", "shard_2"})
		assert.NoError(t, err)
		assert.Equal(t, 2, count, "Expected already approved shards to count as updated")
	})

	t.Run("Empty id list is a no-op", func(t *testing.T) {
		count, err := curator.Approve(campaignID, nil)
		assert.NoError(t, err)
		assert.Equal(t, 0, count)

		count, err = curator.Reject(campaignID, []string{}, "reason")
		assert.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("Reject retains the shard with its reason", func(t *testing.T) {
		count, err := curator.Reject(campaignID, []string{"shard_3"}, "off topic")
		assert.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, model.ShardStatusRejected, shards.shards["shard_3"].Status)
		assert.Equal(t, "off topic", shards.shards["shard_3"].Reason)
	})

	t.Run("Stats reflect the transitions", func(t *testing.T) {
		stats, err := curator.Stats(campaignID)
		assert.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 0, stats.Staged)
		assert.Equal(t, 2, stats.Approved)
		assert.Equal(t, 1, stats.Rejected)
	})

	t.Run("Search sees only approved shards", func(t *testing.T) {
		results, err := curator.Search(campaignID, "harbor", 10)
		assert.NoError(t, err)
		assert.Len(t, results, 2)
	})
}
