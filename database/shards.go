package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// ShardsDBHandlerFunctions defines the interface for shard database
// operations.
type ShardsDBHandlerFunctions interface {
	CreateStagedShards(campaignID uuid.UUID, rows []*model.Shard) ([]*model.Shard, error)
	SelectShardsByCampaign(campaignID uuid.UUID, filter model.ShardFilter) ([]*model.Shard, error)
	BulkUpdateShardStatuses(campaignID uuid.UUID, ids []string, status model.ShardStatus, reason string) (int, error)
	SelectShardStats(campaignID uuid.UUID) (*model.ShardStats, error)
	SearchApprovedShards(campaignID uuid.UUID, query string, limit int) ([]*model.Shard, error)
}

// ShardsDBHandler handles shard-related database operations
type ShardsDBHandler struct {
	db *helper.Database
}

// NewShardsDBHandler creates a new shards database handler.
func NewShardsDBHandler(db *helper.Database, force bool) (*ShardsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	shardsDbHandler := &ShardsDBHandler{
		db: db,
	}

	err := loadSql.LoadShardsSql(shardsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load shards sql", err)
	}

	err = shardsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ShardsDBHandler")

	return shardsDbHandler, nil
}

// CreateTable creates the 'shards' table in the database.
func (h *ShardsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_shards();`)
	if err != nil {
		log.Panicf("error initializing shards table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table shards")

	return nil
}

type stagedShardRow struct {
	ID         string         `json:"id"`
	ResourceID string         `json:"resource_id"`
	ShardType  string         `json:"shard_type"`
	Text       string         `json:"text"`
	Metadata   model.Metadata `json:"metadata"`
}

// CreateStagedShards bulk inserts rows with status staged. Rows whose ID
// already exists are skipped. Returns the rows actually inserted.
func (h *ShardsDBHandler) CreateStagedShards(campaignID uuid.UUID, shards []*model.Shard) ([]*model.Shard, error) {
	if len(shards) == 0 {
		return nil, nil
	}

	stagedRows := make([]stagedShardRow, 0, len(shards))
	for _, shard := range shards {
		stagedRows = append(stagedRows, stagedShardRow{
			ID:         shard.ID,
			ResourceID: shard.ResourceID,
			ShardType:  shard.Type,
			Text:       shard.Text,
			Metadata:   shard.Metadata,
		})
	}
	rowsJSON, err := json.Marshal(stagedRows)
	if err != nil {
		return nil, helper.NewError("marshal rows", err)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM create_staged_shards($1, $2)`,
		campaignID,
		rowsJSON,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return h.scanShards(rows.Next, rows.Scan, rows.Err, false)
}

// SelectShardsByCampaign lists shards with status, resource and type filters
// pushed down to the store
func (h *ShardsDBHandler) SelectShardsByCampaign(campaignID uuid.UUID, filter model.ShardFilter) ([]*model.Shard, error) {
	var status *model.ShardStatus
	if filter.Status != "" && filter.Status != model.ShardStatusAll {
		status = &filter.Status
	}
	var resourceID *string
	if filter.ResourceID != "" {
		resourceID = &filter.ResourceID
	}
	var shardType *string
	if filter.ShardType != "" {
		shardType = &filter.ShardType
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_shards_by_campaign($1, $2, $3, $4, $5)`,
		campaignID,
		status,
		resourceID,
		shardType,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return h.scanShards(rows.Next, rows.Scan, rows.Err, false)
}

// BulkUpdateShardStatuses transitions the given staged shards to status and
// returns the number of rows now carrying it. Rows already carrying the
// target status count as updated, so re-approval is idempotent.
func (h *ShardsDBHandler) BulkUpdateShardStatuses(campaignID uuid.UUID, ids []string, status model.ShardStatus, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var count int
	err := h.db.Instance.QueryRow(
		`SELECT * FROM bulk_update_shard_statuses($1, $2, $3, $4)`,
		campaignID,
		pq.Array(ids),
		status,
		reason,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return count, nil
}

// SelectShardStats aggregates per-campaign shard counts in a single query
func (h *ShardsDBHandler) SelectShardStats(campaignID uuid.UUID) (*model.ShardStats, error) {
	stats := &model.ShardStats{}
	var byType []byte
	err := h.db.Instance.QueryRow(
		`SELECT * FROM select_shard_stats($1)`,
		campaignID,
	).Scan(
		&stats.Total,
		&stats.Staged,
		&stats.Approved,
		&stats.Rejected,
		&byType,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	err = json.Unmarshal(byType, &stats.ByType)
	if err != nil {
		return nil, helper.NewError("unmarshal by_type", err)
	}

	return stats, nil
}

// SearchApprovedShards runs a full text search over approved shards only
func (h *ShardsDBHandler) SearchApprovedShards(campaignID uuid.UUID, query string, limit int) ([]*model.Shard, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_approved_shards($1, $2, $3)`,
		campaignID,
		query,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return h.scanShards(rows.Next, rows.Scan, rows.Err, true)
}

func (h *ShardsDBHandler) scanShards(next func() bool, scan func(dest ...any) error, rowsErr func() error, withRank bool) ([]*model.Shard, error) {
	var shards []*model.Shard
	for next() {
		shard := &model.Shard{}
		dest := []any{
			&shard.ID,
			&shard.CampaignID,
			&shard.ResourceID,
			&shard.Type,
			&shard.Text,
			&shard.Metadata,
			&shard.Status,
			&shard.Reason,
			&shard.CreatedAt,
		}
		if withRank {
			var rank float32
			dest = append(dest, &rank)
			if err := scan(dest...); err != nil {
				return nil, helper.NewError("scan", err)
			}
			if shard.Metadata == nil {
				shard.Metadata = model.Metadata{}
			}
			shard.Metadata["rank"] = float64(rank)
		} else {
			// select_shards_by_campaign returns the stored tsv column too
			var tsv string
			dest = append(dest, &tsv)
			if err := scan(dest...); err != nil {
				return nil, helper.NewError("scan", err)
			}
		}

		shards = append(shards, shard)
	}

	err := rowsErr()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return shards, nil
}
