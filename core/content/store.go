// Package content maintains the staged and approved partitions of the
// per-campaign blob store and moves objects between them.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/core/pipeline"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
)

// BlobStore is the only storage primitive of the content store
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Store translates domain writes into blob keys and enforces the
// staging/approval partitioning. Only approved content is searchable.
type Store struct {
	blobs    BlobStore
	embedder pipeline.EmbedFunc // Optional, lexical scoring is used without it
	log      *slog.Logger
}

// NewStore creates a content store over the given blob primitive. embedder
// may be nil, search then falls back to lexical token overlap scoring.
func NewStore(blobs BlobStore, embedder pipeline.EmbedFunc, logger *slog.Logger) (*Store, error) {
	if blobs == nil {
		return nil, helper.NewError("content store validation", fmt.Errorf("blob store is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		blobs:    blobs,
		embedder: embedder,
		log:      logger,
	}, nil
}

// SyncField writes a structured, user-authored field directly to the
// approved partition. A second call with the same id overwrites the object
// in place.
func (s *Store) SyncField(ctx context.Context, campaignID uuid.UUID, id string, kind string, label string, value string, meta model.Metadata) (string, error) {
	return s.putApproved(ctx, &model.ContentObject{
		ID:         id,
		CampaignID: campaignID,
		Kind:       kind,
		Label:      label,
		Text:       value,
		SourceType: model.ContentSourceUserAuthored,
		Metadata:   meta,
	})
}

// SyncCharacter writes a character field directly to the approved partition
func (s *Store) SyncCharacter(ctx context.Context, campaignID uuid.UUID, id string, label string, value string, meta model.Metadata) (string, error) {
	return s.SyncField(ctx, campaignID, id, "character", label, value, meta)
}

// SyncCharacterSheet writes a character sheet field directly to the approved
// partition
func (s *Store) SyncCharacterSheet(ctx context.Context, campaignID uuid.UUID, id string, label string, value string, meta model.Metadata) (string, error) {
	return s.SyncField(ctx, campaignID, id, "character_sheet", label, value, meta)
}

func (s *Store) putApproved(ctx context.Context, obj *model.ContentObject) (string, error) {
	if err := s.embed(obj); err != nil {
		return "", err
	}
	obj.UpdatedAt = time.Now().UTC()

	key := objectKey(obj.CampaignID, model.PartitionApproved, obj.ID, false)
	data, err := json.Marshal(obj)
	if err != nil {
		return "", helper.NewError("marshal content object", err)
	}

	err = s.blobs.Put(ctx, key, data)
	if err != nil {
		return "", helper.NewError("put approved object", err)
	}

	return key, nil
}

// CreateStagingShard writes a new AI-detected object to the staging
// partition. It is never written to approved directly.
func (s *Store) CreateStagingShard(ctx context.Context, campaignID uuid.UUID, id string, label string, text string, noteType string, confidence float64, sourceMessageID string) (string, *model.ContentObject, error) {
	obj := &model.ContentObject{
		ID:              id,
		CampaignID:      campaignID,
		Kind:            "shard",
		Label:           label,
		Text:            text,
		NoteType:        noteType,
		SourceType:      model.ContentSourceAIDetected,
		SourceMessageID: sourceMessageID,
		Confidence:      confidence,
	}
	if err := s.embed(obj); err != nil {
		return "", nil, err
	}
	obj.UpdatedAt = time.Now().UTC()

	key := objectKey(campaignID, model.PartitionStaging, id, sourceMessageID != "")
	data, err := json.Marshal(obj)
	if err != nil {
		return "", nil, helper.NewError("marshal content object", err)
	}

	err = s.blobs.Put(ctx, key, data)
	if err != nil {
		return "", nil, helper.NewError("put staging object", err)
	}

	s.log.Info("Created staging shard",
		slog.String("campaign_id", campaignID.String()),
		slog.String("staging_key", key),
	)

	return key, obj, nil
}

// Approve moves a staging object to the approved partition. The approved
// write happens strictly before the staging delete, so a crash mid-operation
// leaves the staging copy as the sole authoritative copy instead of losing
// data.
func (s *Store) Approve(ctx context.Context, stagingKey string) (string, error) {
	approvedKey, err := swapPartition(stagingKey, model.PartitionStaging, model.PartitionApproved)
	if err != nil {
		return "", helper.NewError("resolve approved key", err)
	}

	data, err := s.blobs.Get(ctx, stagingKey)
	if err != nil {
		return "", helper.NewError("read staging object", err)
	}

	err = s.blobs.Put(ctx, approvedKey, data)
	if err != nil {
		return "", helper.NewError("put approved object", err)
	}

	err = s.blobs.Delete(ctx, stagingKey)
	if err != nil {
		// The approved copy exists, reconciliation will drop the stale
		// staging copy
		s.log.Warn("Approved object written but staging delete failed",
			slog.String("staging_key", stagingKey),
			slog.String("error", err.Error()),
		)
		return approvedKey, nil
	}

	return approvedKey, nil
}

// Reject moves a staging object to the rejected partition. Rejected objects
// are retained for audit but are invisible to the approved-only search.
func (s *Store) Reject(ctx context.Context, stagingKey string) error {
	rejectedKey, err := swapPartition(stagingKey, model.PartitionStaging, model.PartitionRejected)
	if err != nil {
		return helper.NewError("resolve rejected key", err)
	}

	data, err := s.blobs.Get(ctx, stagingKey)
	if err != nil {
		return helper.NewError("read staging object", err)
	}

	err = s.blobs.Put(ctx, rejectedKey, data)
	if err != nil {
		return helper.NewError("put rejected object", err)
	}

	err = s.blobs.Delete(ctx, stagingKey)
	if err != nil {
		return helper.NewError("delete staging object", err)
	}

	return nil
}

// Search queries the approved partition only
func (s *Store) Search(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]*model.ContentSearchResult, error) {
	return s.searchApproved(ctx, campaignID, query, limit)
}

// AISearch queries the approved partition only. It is the search the
// conversational caller uses, identical in scope to Search.
func (s *Store) AISearch(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]*model.ContentSearchResult, error) {
	return s.searchApproved(ctx, campaignID, query, limit)
}

func (s *Store) searchApproved(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]*model.ContentSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	keys, err := s.blobs.List(ctx, partitionPrefix(campaignID, model.PartitionApproved))
	if err != nil {
		return nil, helper.NewError("list approved objects", err)
	}

	var queryEmbedding []float32
	if s.embedder != nil {
		queryEmbedding, err = s.embedder(query)
		if err != nil {
			return nil, helper.NewError("embed query", err)
		}
	}

	type candidate struct {
		key string
		obj model.ContentObject
	}
	candidates := make([]candidate, 0, len(keys))
	allEmbedded := true
	for _, key := range keys {
		data, err := s.blobs.Get(ctx, key)
		if err != nil {
			return nil, helper.NewError("read approved object", err)
		}

		var obj model.ContentObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, helper.NewError("unmarshal content object", err)
		}

		if len(obj.Embedding) == 0 {
			allEmbedded = false
		}
		candidates = append(candidates, candidate{key: key, obj: obj})
	}

	// Cosine and lexical scores are not comparable, so one query uses one
	// scale. An object written before the embedder was set drops the whole
	// query to lexical scoring.
	useCosine := queryEmbedding != nil && allEmbedded

	var results []*model.ContentSearchResult
	for _, c := range candidates {
		var score float64
		if useCosine {
			score = cosineSimilarity(queryEmbedding, c.obj.Embedding)
		} else {
			score = lexicalOverlap(query, c.obj.Label+" "+c.obj.Text)
		}
		if score <= 0 {
			continue
		}

		results = append(results, &model.ContentSearchResult{
			ID:       c.obj.ID,
			Key:      c.key,
			Score:    score,
			Kind:     c.obj.Kind,
			NoteType: c.obj.NoteType,
			Label:    c.obj.Label,
			Text:     c.obj.Text,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Reconcile resolves objects present in both partitions in favor of the
// approved copy, dropping the stale staging copy left by an interrupted
// move.
func (s *Store) Reconcile(ctx context.Context, campaignID uuid.UUID) (int, error) {
	approvedKeys, err := s.blobs.List(ctx, partitionPrefix(campaignID, model.PartitionApproved))
	if err != nil {
		return 0, helper.NewError("list approved objects", err)
	}

	approved := make(map[string]bool, len(approvedKeys))
	for _, key := range approvedKeys {
		approved[key] = true
	}

	stagingKeys, err := s.blobs.List(ctx, partitionPrefix(campaignID, model.PartitionStaging))
	if err != nil {
		return 0, helper.NewError("list staging objects", err)
	}

	dropped := 0
	for _, key := range stagingKeys {
		// Match on the full counterpart key so a conversation object is
		// never confused with a plain object sharing its id
		counterpart, err := swapPartition(key, model.PartitionStaging, model.PartitionApproved)
		if err != nil {
			continue
		}
		if !approved[counterpart] {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			return dropped, helper.NewError("delete stale staging object", err)
		}
		dropped++
	}

	if dropped > 0 {
		s.log.Info("Reconciled stale staging objects",
			slog.String("campaign_id", campaignID.String()),
			slog.Int("dropped", dropped),
		)
	}

	return dropped, nil
}

func (s *Store) embed(obj *model.ContentObject) error {
	if s.embedder == nil {
		return nil
	}
	embedding, err := s.embedder(obj.Label + " " + obj.Text)
	if err != nil {
		return helper.NewError("embed content object", err)
	}
	obj.Embedding = embedding
	return nil
}

func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// lexicalOverlap scores by the share of query tokens appearing in the text
func lexicalOverlap(query string, text string) float64 {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return 0
	}
	lowered := strings.ToLower(text)

	matched := 0
	for _, token := range queryTokens {
		if strings.Contains(lowered, token) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
