package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/siherrmann/lorebase"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgresContainer starts a PostgreSQL container with a bind mounted
// data directory so the imported campaign survives between runs.
func startPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	// Create data directory if it doesn't exist
	dataDir := "./data"
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}

	// Check if database already exists (data directory has PG_VERSION file)
	pgVersionFile := filepath.Join(absDataDir, "PG_VERSION")
	_, err = os.Stat(pgVersionFile)
	dbExists := err == nil

	// When database already exists, PostgreSQL doesn't re-initialize,
	// so the ready message only appears once instead of twice
	waitOccurrences := 2
	if dbExists {
		waitOccurrences = 1
		fmt.Printf("Using existing persistent database in: %s\n", absDataDir)
	} else {
		fmt.Printf("Creating new persistent database in: %s\n", absDataDir)
	}

	options := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(waitOccurrences),
		),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: absDataDir,
				Target: "/var/lib/postgresql/data",
			})
		}),
	}

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		options...,
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, "", fmt.Errorf("error getting mapped port: %w", err)
	}

	return pgContainer.Terminate, port.Port(), nil
}

func main() {
	_ = godotenv.Load()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		log.Fatal("ANTHROPIC_API_KEY must be set to run the import example")
	}

	notesDir := "./notes"
	if len(os.Args) > 1 {
		notesDir = os.Args[1]
	}
	campaignName := "imported-campaign"
	if len(os.Args) > 2 {
		campaignName = os.Args[2]
	}
	// Stable campaign ID so re-runs land in the same campaign
	campaignID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(campaignName))

	// Start a PostgreSQL container with persistence
	teardown, dbPort, err := startPostgresContainer()
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

	fmt.Println("Setting up pipeline and Claude extraction...")
	if err := l.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	if err := l.UseClaudeGenerator(apiKey); err != nil {
		log.Fatalf("Failed to set up generator: %v", err)
	}

	// Check existing resources to avoid re-processing
	existing, err := checkExistingResources(l, campaignID)
	if err != nil {
		log.Printf("Warning: could not check existing resources: %v", err)
		existing = make(map[string]bool)
	}
	if len(existing) > 0 {
		fmt.Printf("Found %d existing resources in campaign %q\n", len(existing), campaignName)
	}

	entries, err := os.ReadDir(notesDir)
	if err != nil {
		log.Fatalf("Failed to read notes directory %s: %v", notesDir, err)
	}

	ctx := context.Background()

	// Import each markdown file and wait for its extraction job
	processed := 0
	skipped := 0
	for i, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		notePath := filepath.Join(notesDir, entry.Name())
		if existing[notePath] {
			fmt.Printf("Skipping %s (%d/%d) - already imported\n", entry.Name(), i+1, len(entries))
			skipped++
			continue
		}

		resource, err := model.NewResourceFromFile(campaignID, notePath, model.Metadata{
			"campaign": campaignName,
		})
		if err != nil {
			log.Printf("Warning: failed to read %s: %v, skipping...", entry.Name(), err)
			continue
		}

		fmt.Printf("Importing %s (%d/%d)...\n", entry.Name(), i+1, len(entries))
		if _, err := l.ExtractAndStore(ctx, resource); err != nil {
			log.Printf("Warning: failed to import %s: %v, skipping...", entry.Name(), err)
			continue
		}

		status := <-l.Jobs.Watch(campaignID, resource.ID)
		fmt.Printf("  ✓ %s finished with status %s\n", entry.Name(), status)
		processed++
	}

	fmt.Printf("\n✓ Import status:\n")
	fmt.Printf("  - Processed: %d notes\n", processed)
	fmt.Printf("  - Skipped (already imported): %d notes\n\n", skipped)

	// Summarize the extracted lore per entity type
	fmt.Println(strings.Repeat("=", 20))
	for _, entityType := range model.KnownEntityTypes {
		t := entityType
		entities, err := l.Entities.SelectEntitiesByType(campaignID, &t, 100)
		if err != nil {
			log.Printf("Warning: listing %s failed: %v", entityType, err)
			continue
		}
		if len(entities) == 0 {
			continue
		}
		fmt.Printf("\n%s (%d):\n", entityType, len(entities))
		for _, entity := range entities {
			summary := ""
			if s, ok := entity.Content["summary"].(string); ok {
				summary = s
			}
			if len(summary) > 80 {
				summary = summary[:80] + "..."
			}
			fmt.Printf("  - %s: %s\n", entity.Name, summary)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 20))
	fmt.Println("Import complete!")
}

// checkExistingResources returns the file keys of resources already stored
// for the campaign.
func checkExistingResources(l *lorebase.Lorebase, campaignID uuid.UUID) (map[string]bool, error) {
	resources, err := l.Resources.SelectResourcesByCampaign(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}

	existing := make(map[string]bool)
	for _, resource := range resources {
		if resource.FileKey != "" {
			existing[resource.FileKey] = true
		}
	}
	return existing, nil
}
