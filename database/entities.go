package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.Entity) error
	SelectEntity(campaignID uuid.UUID, id string) (*model.Entity, error)
	SelectEntitiesByType(campaignID uuid.UUID, entityType *model.EntityType, limit int) ([]*model.Entity, error)
	DeleteEntity(campaignID uuid.UUID, id string) error
	SelectSimilarEntities(campaignID uuid.UUID, id string, limit int) ([]*model.SimilarEntity, error)
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db        *helper.Database
	relations *RelationsDBHandler
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, relations *RelationsDBHandler, embeddingDim int, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db:        db,
		relations: relations,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// InsertEntity inserts a new entity (or updates if exists) together with its
// relations
func (h *EntitiesDBHandler) InsertEntity(entity *model.Entity) error {
	var embedding interface{}
	if len(entity.Embedding) > 0 {
		embedding = pgvector.NewVector(entity.Embedding)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entity.ID,
		entity.CampaignID,
		entity.Type,
		entity.Name,
		entity.Content,
		entity.Source.SourceType,
		entity.Source.SourceID,
		entity.Source.Confidence,
		embedding,
	)

	var vec nullVector
	err := row.Scan(
		&entity.ID,
		&entity.CampaignID,
		&entity.Type,
		&entity.Name,
		&entity.Content,
		&entity.Source.SourceType,
		&entity.Source.SourceID,
		&entity.Source.Confidence,
		&vec,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	entity.Embedding = vec.Slice()

	if h.relations != nil && len(entity.Relations) > 0 {
		err = h.relations.ReplaceRelations(entity.CampaignID, entity.ID, entity.Relations)
		if err != nil {
			return helper.NewError("replace relations", err)
		}
	}

	return nil
}

// SelectEntity retrieves an entity by campaign and ID, including its
// relations. A missing entity returns nil without error.
func (h *EntitiesDBHandler) SelectEntity(campaignID uuid.UUID, id string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1, $2)`,
		campaignID,
		id,
	)

	var vec nullVector
	err := row.Scan(
		&entity.ID,
		&entity.CampaignID,
		&entity.Type,
		&entity.Name,
		&entity.Content,
		&entity.Source.SourceType,
		&entity.Source.SourceID,
		&entity.Source.Confidence,
		&vec,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	entity.Embedding = vec.Slice()

	if h.relations != nil {
		entity.Relations, err = h.relations.SelectRelationsFromEntity(campaignID, id)
		if err != nil {
			return nil, helper.NewError("select relations", err)
		}
	}

	return entity, nil
}

// SelectEntitiesByType retrieves entities of a campaign, optionally filtered
// by type
func (h *EntitiesDBHandler) SelectEntitiesByType(campaignID uuid.UUID, entityType *model.EntityType, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_type($1, $2, $3)`,
		campaignID,
		entityType,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		var vec nullVector
		err := rows.Scan(
			&entity.ID,
			&entity.CampaignID,
			&entity.Type,
			&entity.Name,
			&entity.Content,
			&entity.Source.SourceType,
			&entity.Source.SourceID,
			&entity.Source.Confidence,
			&vec,
			&entity.CreatedAt,
			&entity.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entity.Embedding = vec.Slice()

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// DeleteEntity deletes an entity and its relations
func (h *EntitiesDBHandler) DeleteEntity(campaignID uuid.UUID, id string) error {
	if h.relations != nil {
		err := h.relations.DeleteRelationsForEntity(campaignID, id)
		if err != nil {
			return helper.NewError("delete relations", err)
		}
	}

	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1, $2)`,
		campaignID,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectSimilarEntities returns the nearest neighbors of an entity by cosine
// similarity. The source entity itself is excluded. Candidates are not
// filtered by campaign or type, callers tier and discard them.
func (h *EntitiesDBHandler) SelectSimilarEntities(campaignID uuid.UUID, id string, limit int) ([]*model.SimilarEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_similar_entities($1, $2, $3)`,
		campaignID,
		id,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var neighbors []*model.SimilarEntity
	for rows.Next() {
		neighbor := &model.SimilarEntity{}
		err := rows.Scan(
			&neighbor.EntityID,
			&neighbor.CampaignID,
			&neighbor.Type,
			&neighbor.Score,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		neighbors = append(neighbors, neighbor)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return neighbors, nil
}
