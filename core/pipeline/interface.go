package pipeline

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// GenerateFunc is a function that runs a prompt against a generative model
// and returns the raw response text. The response may be malformed, callers
// must validate it.
type GenerateFunc func(prompt string) (string, error)

// ChunkFunc is a function that splits text into pieces small enough for a
// single model call
type ChunkFunc func(text string) ([]string, error)
