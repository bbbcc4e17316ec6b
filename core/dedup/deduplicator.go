// Package dedup classifies freshly extracted entities against the existing
// knowledge base using embedding similarity.
package dedup

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
)

// SimilarityIndex is the embedding-similarity backend, an ANN search treated
// as a black box
type SimilarityIndex interface {
	SelectSimilarEntities(campaignID uuid.UUID, id string, limit int) ([]*model.SimilarEntity, error)
}

// EntityStore resolves full entity records. A missing entity returns nil
// without error.
type EntityStore interface {
	SelectEntity(campaignID uuid.UUID, id string) (*model.Entity, error)
}

// EntryStore persists deduplication entries
type EntryStore interface {
	UpsertDedupEntry(entry *model.DeduplicationEntry) error
}

// Deduplicator tiers similarity candidates into direct matches and queued
// review entries
type Deduplicator struct {
	index    SimilarityIndex
	entities EntityStore
	entries  EntryStore
	config   model.DedupConfig
	log      *slog.Logger
}

// NewDeduplicator creates a deduplicator with the given stores and config
func NewDeduplicator(index SimilarityIndex, entities EntityStore, entries EntryStore, config model.DedupConfig, logger *slog.Logger) (*Deduplicator, error) {
	if index == nil || entities == nil || entries == nil {
		return nil, helper.NewError("deduplicator validation", fmt.Errorf("index, entity store and entry store must be non-nil"))
	}
	if config.HighConfidenceThreshold <= config.LowConfidenceThreshold {
		return nil, helper.NewError("deduplicator validation", fmt.Errorf("high confidence threshold must be above low confidence threshold"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Deduplicator{
		index:    index,
		entities: entities,
		entries:  entries,
		config:   config,
		log:      logger,
	}, nil
}

// EvaluateEntity queries the similarity index for neighbors of the entity
// and classifies them. Candidates at or above the high threshold are
// resolved and returned directly; candidates between the thresholds are
// accumulated into a single pending DeduplicationEntry. Candidates below the
// low threshold and candidates from other campaigns or of other types are
// discarded.
//
// An unreachable similarity index is surfaced as an error, never treated as
// zero matches.
func (d *Deduplicator) EvaluateEntity(campaignID uuid.UUID, entityID string, entityType model.EntityType) (*model.DedupEvaluation, error) {
	neighbors, err := d.index.SelectSimilarEntities(campaignID, entityID, d.config.MaxCandidates)
	if err != nil {
		return nil, helper.NewError("query similarity index", err)
	}

	evaluation := &model.DedupEvaluation{}
	var reviewCandidates []model.DedupCandidate

	for _, neighbor := range neighbors {
		// Only candidates from the same campaign and of the same type can be
		// duplicates
		if neighbor.CampaignID != campaignID || neighbor.Type != entityType {
			continue
		}

		switch {
		case neighbor.Score >= d.config.HighConfidenceThreshold:
			entity, err := d.entities.SelectEntity(campaignID, neighbor.EntityID)
			if err != nil {
				return nil, helper.NewError("resolve candidate", err)
			}
			if entity == nil {
				// Candidate was deleted since indexing, skip it
				continue
			}
			evaluation.HighConfidenceMatches = append(evaluation.HighConfidenceMatches, model.EntityMatch{
				Entity: entity,
				Score:  neighbor.Score,
			})

		case neighbor.Score >= d.config.LowConfidenceThreshold:
			reviewCandidates = append(reviewCandidates, model.DedupCandidate{
				CandidateEntityID: neighbor.EntityID,
				Score:             neighbor.Score,
				Status:            model.DedupStatusPending,
			})
		}
	}

	if len(reviewCandidates) > 0 {
		entry := &model.DeduplicationEntry{
			CampaignID:    campaignID,
			EntityID:      entityID,
			Candidates:    reviewCandidates,
			OverallStatus: model.DedupStatusPending,
		}
		err := d.entries.UpsertDedupEntry(entry)
		if err != nil {
			return nil, helper.NewError("persist dedup entry", err)
		}
		evaluation.PendingEntryID = &entry.ID

		d.log.Info("Queued duplicate candidates for review",
			slog.String("campaign_id", campaignID.String()),
			slog.String("entity_id", entityID),
			slog.Int("num_candidates", len(reviewCandidates)),
		)
	}

	return evaluation, nil
}
