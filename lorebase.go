package lorebase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/core/content"
	"github.com/siherrmann/lorebase/core/curate"
	"github.com/siherrmann/lorebase/core/dedup"
	"github.com/siherrmann/lorebase/core/extract"
	"github.com/siherrmann/lorebase/core/jobs"
	"github.com/siherrmann/lorebase/core/pipeline"
	"github.com/siherrmann/lorebase/database"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	loadSql "github.com/siherrmann/lorebase/sql"
)

// Lorebase provides a unified interface to the knowledge base handlers and
// workflows
type Lorebase struct {
	DB        *helper.Database
	Entities  *database.EntitiesDBHandler
	Relations *database.RelationsDBHandler
	Dedup     *database.DedupDBHandler
	Shards    *database.ShardsDBHandler
	Resources *database.ResourcesDBHandler
	Blobs     *database.BlobsDBHandler
	JobsDB    *database.JobsDBHandler

	Extractor    *extract.Extractor    // Optional, set via UseClaudeGenerator
	Deduplicator *dedup.Deduplicator
	Curator      *curate.Curator
	Content      *content.Store
	Jobs         *jobs.Tracker

	Embedder pipeline.EmbedFunc // Optional embedding function for entities and content
	chunker  pipeline.ChunkFunc
	// Logging
	log *slog.Logger
}

// NewLorebase creates a new Lorebase instance with all handlers initialized
func NewLorebase(config *helper.DatabaseConfiguration, embeddingDim int) (*Lorebase, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("lorebase", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (relations first, entities
	// depend on them). force=false to not reload if functions already exist.
	relations, err := database.NewRelationsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create relations handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, relations, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	dedupDB, err := database.NewDedupDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create dedup handler", err)
	}

	resources, err := database.NewResourcesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create resources handler", err)
	}

	shards, err := database.NewShardsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create shards handler", err)
	}

	blobs, err := database.NewBlobsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create blobs handler", err)
	}

	jobsDB, err := database.NewJobsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create jobs handler", err)
	}

	deduplicator, err := dedup.NewDeduplicator(entities, entities, dedupDB, model.DefaultDedupConfig(), logger)
	if err != nil {
		return nil, helper.NewError("create deduplicator", err)
	}

	curator, err := curate.NewCurator(shards, resources, nil, logger)
	if err != nil {
		return nil, helper.NewError("create curator", err)
	}

	contentStore, err := content.NewStore(blobs, nil, logger)
	if err != nil {
		return nil, helper.NewError("create content store", err)
	}

	l := &Lorebase{
		DB:           db,
		Entities:     entities,
		Relations:    relations,
		Dedup:        dedupDB,
		Shards:       shards,
		Resources:    resources,
		Blobs:        blobs,
		JobsDB:       jobsDB,
		Deduplicator: deduplicator,
		Curator:      curator,
		Content:      contentStore,
		log:          logger,
	}

	tracker, err := jobs.NewTracker(jobsDB, l.runExtraction, model.DefaultPollConfig(), logger)
	if err != nil {
		return nil, helper.NewError("create job tracker", err)
	}
	l.Jobs = tracker

	return l, nil
}

// Close closes the database connection
func (l *Lorebase) Close() error {
	if l.DB != nil && l.DB.Instance != nil {
		return l.DB.Instance.Close()
	}
	return nil
}

// UseDefaultPipeline sets up the default embedding and chunking pipeline.
// This uses DefaultEmbedder with the all-MiniLM-L6-v2 model (384 dimensions)
// and SentenceChunker with 24 sentences per chunk.
func (l *Lorebase) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	return l.UsePipeline(embedder, pipeline.SentenceChunker(24))
}

// UsePipeline sets a custom embedding function and chunker. The content
// store is rebuilt so its search scoring uses the embedder as well.
func (l *Lorebase) UsePipeline(embedder pipeline.EmbedFunc, chunker pipeline.ChunkFunc) error {
	contentStore, err := content.NewStore(l.Blobs, embedder, l.log)
	if err != nil {
		return helper.NewError("create content store", err)
	}

	l.Embedder = embedder
	l.chunker = chunker
	l.Content = contentStore
	return nil
}

// UseClaudeGenerator wires the entity extractor to the Anthropic API. Pass
// an empty apiKey to read ANTHROPIC_API_KEY from the environment.
func (l *Lorebase) UseClaudeGenerator(apiKey string) error {
	generator, err := pipeline.NewClaudeGenerator(apiKey)
	if err != nil {
		return helper.NewError("create generator", err)
	}

	return l.UseGenerator(generator.GenerateFunc(context.Background()))
}

// UseGenerator wires the entity extractor to a custom generate function
func (l *Lorebase) UseGenerator(generate pipeline.GenerateFunc) error {
	extractor, err := extract.NewExtractor(generate, l.chunker, l.log)
	if err != nil {
		return helper.NewError("create extractor", err)
	}

	l.Extractor = extractor
	return nil
}

// resourceContentKey is where the raw content of a resource is kept for
// asynchronous extraction runs
func resourceContentKey(campaignID uuid.UUID, resourceID string) string {
	return fmt.Sprintf("resources/%s/%s", campaignID.String(), resourceID)
}

// ExtractAndStore registers a resource and enqueues its extraction:
// 1. Inserting the resource metadata (without content)
// 2. Storing the raw content in the blob store
// 3. Acquiring the extraction job, which runs asynchronously
// The resource's Content field is used for processing but not stored in the
// resources table. Returns the job state for polling.
func (l *Lorebase) ExtractAndStore(ctx context.Context, resource *model.Resource) (*model.JobState, error) {
	if l.Extractor == nil {
		return nil, helper.NewError("extract resource", fmt.Errorf("extractor not set, use UseClaudeGenerator() first"))
	}
	if resource.Content == "" {
		return nil, helper.NewError("extract resource", fmt.Errorf("resource content is empty"))
	}

	// Store content in the blob store and clear it before the DB insert
	rawContent := resource.Content
	resource.Content = ""

	err := l.Resources.InsertResource(resource)
	if err != nil {
		return nil, helper.NewError("insert resource", err)
	}

	err = l.Blobs.Put(ctx, resourceContentKey(resource.CampaignID, resource.ID), []byte(rawContent))
	if err != nil {
		return nil, helper.NewError("store resource content", err)
	}

	l.log.Info("Registered resource", slog.String("resource_id", resource.ID), slog.String("name", resource.Name))

	return l.Jobs.Retry(ctx, resource.CampaignID, resource.ID)
}

// runExtraction is the job runner behind ExtractAndStore. It loads the raw
// content back from the blob store, extracts entities, embeds them if an
// embedder is set, persists them and evaluates each for duplicates.
func (l *Lorebase) runExtraction(ctx context.Context, campaignID uuid.UUID, resourceID string) error {
	if l.Extractor == nil {
		return helper.NewError("extract entities", fmt.Errorf("extractor not set"))
	}

	resource, err := l.Resources.SelectResource(campaignID, resourceID)
	if err != nil {
		return helper.NewError("select resource", err)
	}
	if resource == nil {
		return helper.NewError("select resource", fmt.Errorf("resource %v not found", resourceID))
	}

	rawContent, err := l.Blobs.Get(ctx, resourceContentKey(campaignID, resourceID))
	if err != nil {
		return helper.NewError("load resource content", err)
	}

	entities, err := l.Extractor.Extract(extract.Request{
		CampaignID: campaignID,
		SourceID:   resourceID,
		SourceType: resource.Kind,
		SourceName: resource.Name,
		Content:    string(rawContent),
	})
	if err != nil {
		return helper.NewError("extract entities", err)
	}

	l.log.Info("Extracted entities", slog.Int("num_entities", len(entities)), slog.String("resource_id", resourceID))

	for i, entity := range entities {
		if l.Embedder != nil {
			embedText := entity.Name
			if summary, ok := entity.Content["summary"].(string); ok && summary != "" {
				embedText = embedText + "\n" + summary
			}
			embedding, err := l.Embedder(embedText)
			if err != nil {
				return helper.NewError(fmt.Sprintf("embed entity %d", i), err)
			}
			entity.Embedding = embedding
		}

		err = l.Entities.InsertEntity(entity)
		if err != nil {
			return helper.NewError(fmt.Sprintf("insert entity %d", i), err)
		}

		if len(entity.Embedding) > 0 {
			_, err = l.Deduplicator.EvaluateEntity(campaignID, entity.ID, entity.Type)
			if err != nil {
				return helper.NewError(fmt.Sprintf("evaluate entity %d", i), err)
			}
		}
	}

	return nil
}

// SearchShards queries approved shards by text rank
func (l *Lorebase) SearchShards(campaignID uuid.UUID, query string, limit int) ([]*model.Shard, error) {
	return l.Curator.Search(campaignID, query, limit)
}

// SearchContent queries approved content objects
func (l *Lorebase) SearchContent(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]*model.ContentSearchResult, error) {
	return l.Content.Search(ctx, campaignID, query, limit)
}

// SimilarEntities returns the nearest neighbors of an entity by embedding
func (l *Lorebase) SimilarEntities(campaignID uuid.UUID, entityID string, limit int) ([]*model.SimilarEntity, error) {
	return l.Entities.SelectSimilarEntities(campaignID, entityID, limit)
}
