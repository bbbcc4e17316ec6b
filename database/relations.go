package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// RelationsDBHandlerFunctions defines the interface for entity relation
// database operations.
type RelationsDBHandlerFunctions interface {
	InsertRelation(campaignID uuid.UUID, sourceID string, relation model.Relation) error
	ReplaceRelations(campaignID uuid.UUID, sourceID string, relations []model.Relation) error
	SelectRelationsFromEntity(campaignID uuid.UUID, sourceID string) ([]model.Relation, error)
	SelectRelationsToEntity(campaignID uuid.UUID, targetID string) ([]model.Relation, error)
	DeleteRelationsForEntity(campaignID uuid.UUID, sourceID string) error
}

// RelationsDBHandler handles entity-relation database operations
type RelationsDBHandler struct {
	db *helper.Database
}

// NewRelationsDBHandler creates a new relations database handler.
func NewRelationsDBHandler(db *helper.Database, force bool) (*RelationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	relationsDbHandler := &RelationsDBHandler{
		db: db,
	}

	err := loadSql.LoadRelationsSql(relationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relations sql", err)
	}

	err = relationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RelationsDBHandler")

	return relationsDbHandler, nil
}

// CreateTable creates the 'entity_relations' table in the database.
func (h *RelationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_relations();`)
	if err != nil {
		log.Panicf("error initializing entity_relations table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entity_relations")

	return nil
}

// InsertRelation inserts a relation (or updates its metadata if it exists)
func (h *RelationsDBHandler) InsertRelation(campaignID uuid.UUID, sourceID string, relation model.Relation) error {
	_, err := h.db.Instance.Exec(
		`SELECT * FROM insert_relation($1, $2, $3, $4, $5)`,
		campaignID,
		sourceID,
		relation.RelationshipType,
		relation.TargetID,
		relation.Metadata,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// ReplaceRelations replaces all relations of an entity with the given set
func (h *RelationsDBHandler) ReplaceRelations(campaignID uuid.UUID, sourceID string, relations []model.Relation) error {
	err := h.DeleteRelationsForEntity(campaignID, sourceID)
	if err != nil {
		return err
	}

	for _, relation := range relations {
		err = h.InsertRelation(campaignID, sourceID, relation)
		if err != nil {
			return err
		}
	}
	return nil
}

// SelectRelationsFromEntity retrieves outgoing relations of an entity
func (h *RelationsDBHandler) SelectRelationsFromEntity(campaignID uuid.UUID, sourceID string) ([]model.Relation, error) {
	return h.selectRelations(`SELECT * FROM select_relations_from_entity($1, $2)`, campaignID, sourceID)
}

// SelectRelationsToEntity retrieves incoming relations of an entity
func (h *RelationsDBHandler) SelectRelationsToEntity(campaignID uuid.UUID, targetID string) ([]model.Relation, error) {
	return h.selectRelations(`SELECT * FROM select_relations_to_entity($1, $2)`, campaignID, targetID)
}

func (h *RelationsDBHandler) selectRelations(query string, campaignID uuid.UUID, entityID string) ([]model.Relation, error) {
	rows, err := h.db.Instance.Query(query, campaignID, entityID)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var relations []model.Relation
	for rows.Next() {
		var relation model.Relation
		var rowCampaignID uuid.UUID
		var sourceID string
		var createdAt time.Time
		err := rows.Scan(
			&rowCampaignID,
			&sourceID,
			&relation.RelationshipType,
			&relation.TargetID,
			&relation.Metadata,
			&createdAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		relations = append(relations, relation)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return relations, nil
}

// DeleteRelationsForEntity deletes all outgoing relations of an entity
func (h *RelationsDBHandler) DeleteRelationsForEntity(campaignID uuid.UUID, sourceID string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_relations_for_entity($1, $2)`,
		campaignID,
		sourceID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
