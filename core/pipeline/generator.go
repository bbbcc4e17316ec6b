package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultGeneratorModel     = "claude-3-5-haiku-20241022"
	defaultGeneratorMaxTokens = 4096
	generatorMaxRetries       = 3
	generatorInitialBackoff   = 1 * time.Second
)

// ErrAPIKeyRequired is returned when no Anthropic API key is available
var ErrAPIKeyRequired = errors.New("API key required")

// ErrRateLimited marks a model call that still hit the API rate limit after
// all retry attempts. Errors wrapping this sentinel end the extraction job
// as rate_limited instead of failed.
var ErrRateLimited = errors.New("rate limited")

// ClaudeGenerator wraps the Anthropic API as a GenerateFunc provider.
// Transient failures are retried with exponential backoff.
type ClaudeGenerator struct {
	client         anthropic.Client
	model          anthropic.Model
	maxTokens      int64
	maxRetries     int
	initialBackoff time.Duration
}

// NewClaudeGenerator creates a new generator client. Env var
// ANTHROPIC_API_KEY takes precedence over the explicit apiKey.
func NewClaudeGenerator(apiKey string) (*ClaudeGenerator, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", ErrAPIKeyRequired)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &ClaudeGenerator{
		client:         client,
		model:          defaultGeneratorModel,
		maxTokens:      defaultGeneratorMaxTokens,
		maxRetries:     generatorMaxRetries,
		initialBackoff: generatorInitialBackoff,
	}, nil
}

// Generate runs the prompt and returns the raw response text
func (g *ClaudeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := g.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("empty response from model")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
	}

	return "", wrapExhausted(g.maxRetries+1, lastErr)
}

// wrapExhausted builds the terminal error once all attempts are used up,
// tagging rate limit failures with ErrRateLimited
func wrapExhausted(attempts int, lastErr error) error {
	if isRateLimited(lastErr) {
		return fmt.Errorf("model call failed after %d attempts: %w: %w", attempts, ErrRateLimited, lastErr)
	}
	return fmt.Errorf("model call failed after %d attempts: %w", attempts, lastErr)
}

func isRateLimited(err error) bool {
	var apiErr *anthropic.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// GenerateFunc adapts the generator to the pipeline function type
func (g *ClaudeGenerator) GenerateFunc(ctx context.Context) GenerateFunc {
	return func(prompt string) (string, error) {
		return g.Generate(ctx, prompt)
	}
}
