package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Resource represents an uploaded document or content source that shards and
// entities are extracted from.
type Resource struct {
	ID         string    `json:"id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind,omitempty"`
	FileKey    string    `json:"file_key,omitempty"`
	Content    string    `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewResourceFromFile reads a file and creates a Resource with the file content.
// The name defaults to the filename without extension, the file key to the path.
func NewResourceFromFile(campaignID uuid.UUID, filePath string, metadata Metadata) (*Resource, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	name := filename[:len(filename)-len(filepath.Ext(filename))]
	if name == "" {
		name = filename
	}

	return &Resource{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Name:       name,
		Kind:       "document",
		FileKey:    filePath,
		Content:    string(content),
		Metadata:   metadata,
	}, nil
}
