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

const sessionNotes = `The party arrived in Saltmarsh at dusk. Aria Fenwick,
the harbormaster, warned them about smugglers operating out of the old
lighthouse. Captain Holt of the harbor watch offered a reward of 200 gold
for proof of the smuggling ring.

Keth, a dockworker with ties to the Sea Princes, mentioned a hidden cove
north of the cliffs where a sloop moors on moonless nights.`

// extractionResponse stands in for a live model call so the example runs
// without an API key. With ANTHROPIC_API_KEY set, use UseClaudeGenerator
// instead of UseGenerator.
const extractionResponse = `{
	"npcs": [
		{"id": "npc_aria_fenwick", "name": "Aria Fenwick", "summary": "Harbormaster of Saltmarsh", "relations": [{"rel": "works_in", "target_id": "loc_saltmarsh"}]},
		{"id": "npc_holt", "name": "Captain Holt", "summary": "Leads the harbor watch", "relations": [{"rel": "works_in", "target_id": "loc_saltmarsh"}]},
		{"id": "npc_keth", "name": "Keth", "summary": "Dockworker tied to the Sea Princes", "relations": [{"rel": "member_of", "target_id": "faction_sea_princes"}]}
	],
	"locations": [
		{"id": "loc_saltmarsh", "name": "Saltmarsh", "summary": "Coastal trade town"},
		{"id": "loc_hidden_cove", "name": "Hidden Cove", "summary": "Smuggler mooring north of the cliffs"}
	],
	"factions": [
		{"id": "faction_sea_princes", "name": "Sea Princes", "summary": "Smuggling ring"}
	]
}`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
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

	// Set up the default pipeline (sentence chunking + embeddings)
	if err := l.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	if err := l.UseGenerator(func(prompt string) (string, error) {
		return extractionResponse, nil
	}); err != nil {
		log.Fatalf("Failed to set up generator: %v", err)
	}

	campaignID := uuid.New()
	ctx := context.Background()

	// Register the session notes and run extraction
	fmt.Println("Ingesting session notes...")
	state, err := l.ExtractAndStore(ctx, &model.Resource{
		ID:         "res_session_1",
		CampaignID: campaignID,
		Name:       "Session 1 Notes",
		Kind:       "document",
		Content:    sessionNotes,
	})
	if err != nil {
		log.Fatalf("Failed to extract: %v", err)
	}
	fmt.Printf("Extraction job enqueued (status: %s)\n", state.Status)

	// Wait for the asynchronous extraction run to finish
	status := <-l.Jobs.Watch(campaignID, "res_session_1")
	fmt.Printf("Extraction finished with status: %s\n", status)

	// List the extracted NPCs
	npcType := model.EntityTypeNPCs
	npcs, err := l.Entities.SelectEntitiesByType(campaignID, &npcType, 10)
	if err != nil {
		log.Fatalf("Failed to list NPCs: %v", err)
	}
	fmt.Printf("\nExtracted %d NPCs:\n", len(npcs))
	for _, npc := range npcs {
		fmt.Printf("  %s - %v\n", npc.Name, npc.Content["summary"])
	}

	// Find entities similar to Aria
	similar, err := l.SimilarEntities(campaignID, "npc_aria_fenwick", 3)
	if err != nil {
		log.Fatalf("Failed to query similar entities: %v", err)
	}
	fmt.Printf("\nNearest neighbors of Aria Fenwick:\n")
	for _, neighbor := range similar {
		fmt.Printf("  %s (score %.4f)\n", neighbor.EntityID, neighbor.Score)
	}

	fmt.Println("\nBasic example completed successfully!")
}
