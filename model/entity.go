package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed set of knowledge buckets entities are sorted into.
// Unknown buckets coerce to EntityTypeCustom at parse time.
type EntityType string

const (
	EntityTypeNPCs      EntityType = "npcs"
	EntityTypeLocations EntityType = "locations"
	EntityTypeItems     EntityType = "items"
	EntityTypeFactions  EntityType = "factions"
	EntityTypeEvents    EntityType = "events"
	EntityTypeCustom    EntityType = "custom"
)

// KnownEntityTypes lists all valid entity type buckets
var KnownEntityTypes = []EntityType{
	EntityTypeNPCs,
	EntityTypeLocations,
	EntityTypeItems,
	EntityTypeFactions,
	EntityTypeEvents,
	EntityTypeCustom,
}

// NormalizeEntityType validates a bucket key against the known set.
// Unknown buckets map to EntityTypeCustom.
func NormalizeEntityType(bucket string) EntityType {
	for _, t := range KnownEntityTypes {
		if EntityType(bucket) == t {
			return t
		}
	}
	return EntityTypeCustom
}

// Relation represents a typed link from one entity to another
type Relation struct {
	RelationshipType string   `json:"relationship_type"`
	TargetID         string   `json:"target_id"`
	Metadata         Metadata `json:"metadata,omitempty"`
}

// EntitySource carries the provenance of an extracted entity
type EntitySource struct {
	SourceType string  `json:"source_type"`
	SourceID   string  `json:"source_id"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Entity represents a structured campaign record (NPC, location, item, ...)
// extracted from raw text. Identity is (CampaignID, ID).
type Entity struct {
	ID         string       `json:"id"`
	CampaignID uuid.UUID    `json:"campaign_id"`
	Type       EntityType   `json:"entity_type"`
	Name       string       `json:"name"`
	Content    Metadata     `json:"content,omitempty"`
	Source     EntitySource `json:"metadata"`
	Relations  []Relation   `json:"relations,omitempty"`
	Embedding  []float32    `json:"embedding,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// SimilarEntity is a nearest neighbor row from the embedding index
type SimilarEntity struct {
	EntityID   string     `json:"entity_id"`
	CampaignID uuid.UUID  `json:"campaign_id"`
	Type       EntityType `json:"entity_type"`
	Score      float64    `json:"score"`
}

// EntityMatch pairs a fully resolved entity with its similarity score
type EntityMatch struct {
	Entity *Entity `json:"entity"`
	Score  float64 `json:"score"`
}
