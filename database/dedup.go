package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// DedupDBHandlerFunctions defines the interface for deduplication entry
// database operations.
type DedupDBHandlerFunctions interface {
	UpsertDedupEntry(entry *model.DeduplicationEntry) error
	SelectDedupEntry(id uuid.UUID) (*model.DeduplicationEntry, error)
	SelectPendingDedupEntry(campaignID uuid.UUID, entityID string) (*model.DeduplicationEntry, error)
	SelectDedupEntries(filter model.DedupEntryFilter) ([]*model.DeduplicationEntry, error)
	UpdateDedupEntry(id uuid.UUID, candidates []model.DedupCandidate, status model.DedupStatus) (*model.DeduplicationEntry, error)
}

// DedupDBHandler handles deduplication entry database operations
type DedupDBHandler struct {
	db *helper.Database
}

// NewDedupDBHandler creates a new deduplication database handler.
func NewDedupDBHandler(db *helper.Database, force bool) (*DedupDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	dedupDbHandler := &DedupDBHandler{
		db: db,
	}

	err := loadSql.LoadDedupSql(dedupDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load dedup sql", err)
	}

	err = dedupDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DedupDBHandler")

	return dedupDbHandler, nil
}

// CreateTable creates the 'dedup_entries' table in the database.
// The table carries a partial unique index keeping at most one pending entry
// per (campaign_id, entity_id).
func (h *DedupDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_dedup();`)
	if err != nil {
		log.Panicf("error initializing dedup_entries table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table dedup_entries")

	return nil
}

// UpsertDedupEntry persists a pending entry. If a pending entry already
// exists for the same (campaign, entity) its candidates are refreshed and
// the existing entry is returned instead of creating a second one.
func (h *DedupDBHandler) UpsertDedupEntry(entry *model.DeduplicationEntry) error {
	candidates, err := json.Marshal(entry.Candidates)
	if err != nil {
		return helper.NewError("marshal candidates", err)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_dedup_entry($1, $2, $3)`,
		entry.CampaignID,
		entry.EntityID,
		candidates,
	)

	return h.scanEntry(row.Scan, entry)
}

// SelectDedupEntry retrieves an entry by ID
func (h *DedupDBHandler) SelectDedupEntry(id uuid.UUID) (*model.DeduplicationEntry, error) {
	entry := &model.DeduplicationEntry{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_dedup_entry($1)`,
		id,
	)

	err := h.scanEntry(row.Scan, entry)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// SelectPendingDedupEntry retrieves the pending entry for an entity, or nil
// if none is outstanding
func (h *DedupDBHandler) SelectPendingDedupEntry(campaignID uuid.UUID, entityID string) (*model.DeduplicationEntry, error) {
	entry := &model.DeduplicationEntry{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_pending_dedup_entry($1, $2)`,
		campaignID,
		entityID,
	)

	err := h.scanEntry(row.Scan, entry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// SelectDedupEntries lists entries matching the filter
func (h *DedupDBHandler) SelectDedupEntries(filter model.DedupEntryFilter) ([]*model.DeduplicationEntry, error) {
	var entityID *string
	if filter.EntityID != "" {
		entityID = &filter.EntityID
	}
	var status *model.DedupStatus
	if filter.Status != "" {
		status = &filter.Status
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_dedup_entries($1, $2, $3, $4)`,
		filter.CampaignID,
		entityID,
		status,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entries []*model.DeduplicationEntry
	for rows.Next() {
		entry := &model.DeduplicationEntry{}
		err := h.scanEntry(rows.Scan, entry)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entries, nil
}

// UpdateDedupEntry patches candidates and/or status of an entry. Nil
// candidates and empty status leave the respective column untouched.
func (h *DedupDBHandler) UpdateDedupEntry(id uuid.UUID, candidates []model.DedupCandidate, status model.DedupStatus) (*model.DeduplicationEntry, error) {
	var candidatesJSON interface{}
	if candidates != nil {
		b, err := json.Marshal(candidates)
		if err != nil {
			return nil, helper.NewError("marshal candidates", err)
		}
		candidatesJSON = b
	}
	var statusValue *model.DedupStatus
	if status != "" {
		statusValue = &status
	}

	entry := &model.DeduplicationEntry{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_dedup_entry($1, $2, $3)`,
		id,
		candidatesJSON,
		statusValue,
	)

	err := h.scanEntry(row.Scan, entry)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (h *DedupDBHandler) scanEntry(scan func(dest ...any) error, entry *model.DeduplicationEntry) error {
	var candidates []byte
	err := scan(
		&entry.ID,
		&entry.CampaignID,
		&entry.EntityID,
		&candidates,
		&entry.OverallStatus,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err != nil {
		return helper.NewError("scan", err)
	}

	err = json.Unmarshal(candidates, &entry.Candidates)
	if err != nil {
		return helper.NewError("unmarshal candidates", err)
	}

	return nil
}
