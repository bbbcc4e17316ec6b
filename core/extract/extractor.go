// Package extract turns raw campaign text into typed entities using a
// generative model.
package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/core/pipeline"
	"github.com/siherrmann/lorebase/helper"
	"github.com/siherrmann/lorebase/model"
)

// ExtractionError reports a model response the extractor could not
// understand. It carries the raw response text for diagnostics, so callers
// can distinguish "no entities found" from "could not parse the response".
type ExtractionError struct {
	Reason      string
	RawResponse string
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s (raw response: %.200q)", e.Reason, e.RawResponse)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Request carries raw text together with its provenance
type Request struct {
	CampaignID uuid.UUID
	SourceID   string
	SourceType string
	SourceName string
	Content    string
}

// Extractor calls a generative model and parses its response into entities
type Extractor struct {
	generate pipeline.GenerateFunc
	chunk    pipeline.ChunkFunc
	log      *slog.Logger
}

// NewExtractor creates an extractor. chunker may be nil, in which case the
// content is always sent in a single model call.
func NewExtractor(generate pipeline.GenerateFunc, chunker pipeline.ChunkFunc, logger *slog.Logger) (*Extractor, error) {
	if generate == nil {
		return nil, helper.NewError("extractor validation", fmt.Errorf("generate function is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{
		generate: generate,
		chunk:    chunker,
		log:      logger,
	}, nil
}

// Extract runs the model over the request content and returns the extracted
// entities in response order, concatenated bucket by bucket.
func (e *Extractor) Extract(req Request) ([]*model.Entity, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, nil
	}

	pieces := []string{req.Content}
	if e.chunk != nil {
		chunked, err := e.chunk(req.Content)
		if err != nil {
			return nil, helper.NewError("chunk content", err)
		}
		if len(chunked) > 0 {
			pieces = chunked
		}
	}

	var entities []*model.Entity
	for _, piece := range pieces {
		response, err := e.generate(buildPrompt(req.SourceName, piece))
		if err != nil {
			return nil, helper.NewError("run model", err)
		}

		parsed, err := parseResponse(response, req)
		if err != nil {
			return nil, err
		}
		entities = append(entities, parsed...)
	}

	e.log.Info("Extracted entities",
		slog.String("campaign_id", req.CampaignID.String()),
		slog.String("source_id", req.SourceID),
		slog.Int("num_entities", len(entities)),
	)

	return entities, nil
}

// responseEntry is one entity entry inside a bucket of the model response
type responseEntry struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Summary   string  `json:"summary"`
	Relations []struct {
		Rel      string `json:"rel"`
		TargetID string `json:"target_id"`
	} `json:"relations"`
	Confidence *float64 `json:"confidence"`
}

// parseResponse decodes the bucket mapping while preserving the order in
// which buckets appear in the response text
func parseResponse(response string, req Request) ([]*model.Entity, error) {
	cleaned := stripFences(response)

	dec := json.NewDecoder(strings.NewReader(cleaned))

	tok, err := dec.Token()
	if err != nil {
		return nil, &ExtractionError{Reason: "response is not valid JSON", RawResponse: response, Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &ExtractionError{Reason: "response is not a JSON object", RawResponse: response}
	}

	var entities []*model.Entity
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &ExtractionError{Reason: "malformed bucket key", RawResponse: response, Err: err}
		}
		bucket, ok := keyTok.(string)
		if !ok {
			return nil, &ExtractionError{Reason: "bucket key is not a string", RawResponse: response}
		}

		var entries []responseEntry
		if err := dec.Decode(&entries); err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("bucket %q is not an entity array", bucket), RawResponse: response, Err: err}
		}

		for _, entry := range entries {
			if entry.Name == "" {
				return nil, &ExtractionError{Reason: fmt.Sprintf("entity in bucket %q has no name", bucket), RawResponse: response}
			}

			entity := &model.Entity{
				ID:         entry.ID,
				CampaignID: req.CampaignID,
				Type:       model.NormalizeEntityType(bucket),
				Name:       entry.Name,
				Content:    model.Metadata{"summary": entry.Summary},
				Source: model.EntitySource{
					SourceType: req.SourceType,
					SourceID:   req.SourceID,
				},
			}
			if entity.ID == "" {
				entity.ID = uuid.NewString()
			}
			if entry.Confidence != nil {
				entity.Source.Confidence = *entry.Confidence
			}
			for _, relation := range entry.Relations {
				entity.Relations = append(entity.Relations, model.Relation{
					RelationshipType: relation.Rel,
					TargetID:         relation.TargetID,
				})
			}

			entities = append(entities, entity)
		}
	}

	// Consume the closing brace so trailing garbage is detected
	if _, err := dec.Token(); err != nil {
		return nil, &ExtractionError{Reason: "unterminated JSON object", RawResponse: response, Err: err}
	}

	return entities, nil
}

// stripFences removes a surrounding markdown code fence the model sometimes
// wraps its JSON in
func stripFences(response string) string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	return strings.TrimSpace(cleaned)
}

func buildPrompt(sourceName string, content string) string {
	var b strings.Builder
	b.WriteString("Extract every campaign entity from the following text.\n")
	b.WriteString("Respond with a single JSON object mapping entity type buckets ")
	b.WriteString("(npcs, locations, items, factions, events, custom) to arrays of entities.\n")
	b.WriteString("Each entity has the shape {\"id\": string, \"name\": string, \"summary\": string, ")
	b.WriteString("\"relations\": [{\"rel\": string, \"target_id\": string}]}.\n")
	b.WriteString("Omit empty buckets. Respond with JSON only, no prose.\n\n")
	if sourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n\n", sourceName)
	}
	b.WriteString(content)
	return b.String()
}
