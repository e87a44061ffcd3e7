// Package embedding provides embedding generation for set descriptions
// and queries.
package embedding

import "context"

// Embedder turns text into dense vectors. Implementations must be
// deterministic for the lifetime of one index generation: the same text
// always maps to the same vector.
type Embedder interface {
	// Embed generates embeddings for the given texts, one vector per input
	// in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Model returns the model identifier recorded in index manifests.
	Model() string

	// Dimension returns the embedding dimension.
	Dimension() int
}
