package pipeline

import (
	"fmt"
	"strings"
)

// SentenceChunker creates a chunker that splits by sentences, packing up to
// maxSentencesPerChunk sentences into each piece. Text that fits into a
// single piece is returned unchanged.
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string) ([]string, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		// Handle empty or whitespace-only text
		if strings.TrimSpace(text) == "" {
			return []string{}, nil
		}

		text = strings.ReplaceAll(text, "! ", "!|")
		text = strings.ReplaceAll(text, "? ", "?|")
		text = strings.ReplaceAll(text, ". ", ".|")

		var sentences []string
		for _, s := range strings.Split(text, "|") {
			s = strings.TrimSpace(s)
			if s != "" {
				sentences = append(sentences, s)
			}
		}

		var chunks []string
		var current []string
		for _, sentence := range sentences {
			current = append(current, sentence)
			if len(current) >= maxSentencesPerChunk {
				chunks = append(chunks, strings.Join(current, " "))
				current = nil
			}
		}
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}

		return chunks, nil
	}
}
