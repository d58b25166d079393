// Package embedding turns text into vectors through a remote embeddings API, with
// rate limiting, a query cache and a deterministic mock for tests.
package embedding

import "context"

// Embedder produces vector embeddings for text. EmbedBatch returns exactly one vector per
// input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Factory builds an embedder for an API key. Keys are resolved per ingestion or query, so
// callers create embedders on demand.
type Factory func(apiKey string) (Embedder, error)
