// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed provides vector embeddings for the placement and
// ranking heuristics. Two backends are supported: a local Ollama
// server and the OpenAI embeddings API.
package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/pdiddy/roundtable/pkg/types"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the backend identifier.
	Name() string
}

// NewEmbedder builds an embedding backend from config.
func NewEmbedder(cfg types.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case types.EmbeddingOllama, "":
		return NewOllamaBackend(cfg.OllamaEndpoint, cfg.OllamaModel), nil
	case types.EmbeddingOpenAI:
		return NewOpenAIBackend(cfg.APIKey, cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q: use ollama or openai", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine similarity of two vectors, in
// [-1, 1]. Mismatched dimensions are an error; a zero vector yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
