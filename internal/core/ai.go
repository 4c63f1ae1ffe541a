package core

import "context"

// EmbeddingProvider turns text into fixed-dimension vectors. EmbedTexts is
// order-preserving and returns exactly one vector per input text.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider produces a free-text answer conditioned on the prompts.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
