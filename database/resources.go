package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// ResourcesDBHandlerFunctions defines the interface for resource database
// operations.
type ResourcesDBHandlerFunctions interface {
	InsertResource(resource *model.Resource) error
	SelectResource(campaignID uuid.UUID, id string) (*model.Resource, error)
	SelectResourcesByCampaign(campaignID uuid.UUID) ([]*model.Resource, error)
	DeleteResource(campaignID uuid.UUID, id string) error
}

// ResourcesDBHandler handles resource-related database operations
type ResourcesDBHandler struct {
	db *helper.Database
}

// NewResourcesDBHandler creates a new resources database handler.
func NewResourcesDBHandler(db *helper.Database, force bool) (*ResourcesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	resourcesDbHandler := &ResourcesDBHandler{
		db: db,
	}

	err := loadSql.LoadResourcesSql(resourcesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load resources sql", err)
	}

	err = resourcesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ResourcesDBHandler")

	return resourcesDbHandler, nil
}

// CreateTable creates the 'resources' table in the database.
func (h *ResourcesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_resources();`)
	if err != nil {
		log.Panicf("error initializing resources table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table resources")

	return nil
}

// InsertResource inserts a new resource (or updates if exists). The Content
// field is used for processing only and never stored.
func (h *ResourcesDBHandler) InsertResource(resource *model.Resource) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_resource($1, $2, $3, $4, $5, $6)`,
		resource.ID,
		resource.CampaignID,
		resource.Name,
		resource.Kind,
		resource.FileKey,
		resource.Metadata,
	)

	err := row.Scan(
		&resource.ID,
		&resource.CampaignID,
		&resource.Name,
		&resource.Kind,
		&resource.FileKey,
		&resource.Metadata,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectResource retrieves a resource by campaign and ID, or nil if missing
func (h *ResourcesDBHandler) SelectResource(campaignID uuid.UUID, id string) (*model.Resource, error) {
	resource := &model.Resource{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_resource($1, $2)`,
		campaignID,
		id,
	)

	err := row.Scan(
		&resource.ID,
		&resource.CampaignID,
		&resource.Name,
		&resource.Kind,
		&resource.FileKey,
		&resource.Metadata,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return resource, nil
}

// SelectResourcesByCampaign lists all resources of a campaign
func (h *ResourcesDBHandler) SelectResourcesByCampaign(campaignID uuid.UUID) ([]*model.Resource, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_resources_by_campaign($1)`,
		campaignID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var resources []*model.Resource
	for rows.Next() {
		resource := &model.Resource{}
		err := rows.Scan(
			&resource.ID,
			&resource.CampaignID,
			&resource.Name,
			&resource.Kind,
			&resource.FileKey,
			&resource.Metadata,
			&resource.CreatedAt,
			&resource.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		resources = append(resources, resource)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return resources, nil
}

// DeleteResource deletes a resource by campaign and ID
func (h *ResourcesDBHandler) DeleteResource(campaignID uuid.UUID, id string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_resource($1, $2)`,
		campaignID,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
