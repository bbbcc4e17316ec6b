package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
)

// searchResponse stands in for a live model pass over the session notes.
// Each entry becomes a staged shard awaiting review.
const searchResponse = `{
	"shards": [
		{"id": "shard_harbor", "text": "Saltmarsh harbor holds two dozen fishing boats and a customs house", "entity_type": "locations", "confidence": 0.93},
		{"id": "shard_aria", "text": "Aria Fenwick keeps a ledger of every ship that docks", "entity_type": "npcs", "confidence": 0.88},
		{"id": "shard_cove", "text": "A sloop moors in the hidden cove on moonless nights", "entity_type": "locations", "confidence": 0.81},
		{"id": "shard_wild_guess", "text": "The lighthouse keeper might be a doppelganger", "entity_type": "npcs", "confidence": 0.35}
	]
}`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	l, err := lorebase.NewLorebase(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create lorebase: %v", err)
	}
	defer l.Close()

	campaignID := uuid.New()
	ctx := context.Background()

	// Register the source resource the shards will be attributed to
	resource := &model.Resource{
		ID:         "res_session_1",
		CampaignID: campaignID,
		Name:       "Session 1 Notes",
		Kind:       "document",
		FileKey:    "uploads/session-1.md",
	}
	if err := l.Resources.InsertResource(resource); err != nil {
		log.Fatalf("Failed to insert resource: %v", err)
	}

	// 1. Stage shard candidates from a model response
	fmt.Println("=== 1. Staging Shard Candidates ===")
	candidates, status := l.Curator.ParseSearchResponse(searchResponse, resource, campaignID)
	if status != model.DiscoverStatusOK {
		log.Fatalf("Expected candidates, got status %s", status)
	}
	staged, err := l.Curator.Stage(candidates, campaignID, resource.ID)
	if err != nil {
		log.Fatalf("Failed to stage shards: %v", err)
	}
	fmt.Printf("Staged %d shard candidates\n", len(staged))

	// 2. Discover what is waiting for review, grouped by source
	fmt.Println("\n=== 2. Reviewing Staged Shards ===")
	discovered, err := l.Curator.Discover(campaignID.String(), model.ShardFilter{})
	if err != nil {
		log.Fatalf("Failed to discover staged shards: %v", err)
	}
	for _, group := range discovered.Groups {
		fmt.Printf("From %s:\n", group.SourceRef)
		for _, shard := range group.Shards {
			fmt.Printf("  [%s] %s: %s\n", shard.Type, shard.ID, shard.Text)
		}
	}

	// 3. Approve the solid shards, reject the speculation
	fmt.Println("\n=== 3. Approve / Reject ===")
	approved, err := l.Curator.Approve(campaignID, []string{"shard_harbor", "shard_aria", "shard_cove"})
	if err != nil {
		log.Fatalf("Failed to approve shards: %v", err)
	}
	rejected, err := l.Curator.Reject(campaignID, []string{"shard_wild_guess"}, "unsupported speculation")
	if err != nil {
		log.Fatalf("Failed to reject shard: %v", err)
	}
	fmt.Printf("Approved %d shards, rejected %d\n", approved, rejected)

	// 4. Full text search only sees approved shards
	fmt.Println("\n=== 4. Shard Search ===")
	hits, err := l.SearchShards(campaignID, "fishing boats", 5)
	if err != nil {
		log.Fatalf("Shard search failed: %v", err)
	}
	for _, hit := range hits {
		fmt.Printf("  %s: %s\n", hit.ID, hit.Text)
	}

	stats, err := l.Curator.Stats(campaignID)
	if err != nil {
		log.Fatalf("Failed to load shard stats: %v", err)
	}
	fmt.Printf("Stats: %d total, %d staged, %d approved, %d rejected\n",
		stats.Total, stats.Staged, stats.Approved, stats.Rejected)

	// 5. Content store: user authored facts skip review entirely
	fmt.Println("\n=== 5. Content Store ===")
	key, err := l.Content.SyncCharacter(ctx, campaignID, "char_aria_notes", "Background",
		"Aria Fenwick served ten years in the harbor watch before taking over as harbormaster", nil)
	if err != nil {
		log.Fatalf("Failed to sync character field: %v", err)
	}
	fmt.Printf("Synced character field to %s\n", key)

	stagingKey, _, err := l.Content.CreateStagingShard(ctx, campaignID, "note_cove",
		"Cove rumor", "The hidden cove connects to a sea cave beneath the lighthouse", "rumor", 0.8, "")
	if err != nil {
		log.Fatalf("Failed to create staging shard: %v", err)
	}
	fmt.Printf("Created staging shard at %s\n", stagingKey)

	// Staged content is invisible to search until it is approved
	approvedKey, err := l.Content.Approve(ctx, stagingKey)
	if err != nil {
		log.Fatalf("Failed to approve staging shard: %v", err)
	}
	fmt.Printf("Approved content moved to %s\n", approvedKey)

	results, err := l.SearchContent(ctx, campaignID, "sea cave lighthouse", 5)
	if err != nil {
		log.Fatalf("Content search failed: %v", err)
	}
	fmt.Println("Content search results:")
	for _, result := range results {
		fmt.Printf("  %.3f %s: %s\n", result.Score, result.Label, result.Text)
	}

	// 6. Reconciliation cleans up staging leftovers
	fmt.Println("\n=== 6. Reconciliation ===")
	resolved, err := l.Content.Reconcile(ctx, campaignID)
	if err != nil {
		log.Fatalf("Reconcile failed: %v", err)
	}
	fmt.Printf("Reconcile resolved %d dangling staging objects\n", resolved)

	fmt.Println("\n=== Advanced Example Completed Successfully! ===")
	fmt.Println("\nKey features demonstrated:")
	fmt.Println("✓ Shard staging from a model response")
	fmt.Println("✓ Review grouped by source resource")
	fmt.Println("✓ Approve / reject with retained reasons")
	fmt.Println("✓ Full text search over approved shards")
	fmt.Println("✓ Content store sync, staging and approval")
	fmt.Println("✓ Staging reconciliation")
}
