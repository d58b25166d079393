package embedding

import (
	"context"
	"math"
	"sync"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. The same text always
// gets the same unit vector. It counts calls and can be told to fail.
type MockEmbedder struct {
	dimensions int

	mu         sync.Mutex
	batchCalls int
	texts      int
	failAfter  int // fail every batch once this many batches succeeded; -1 never
	err        error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockEmbedder{dimensions: dimensions, failAfter: -1}
}

// FailAfter makes every batch after the first n return err.
func (e *MockEmbedder) FailAfter(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAfter = n
	e.err = err
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds each text; one call counts as one request.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.failAfter >= 0 && e.batchCalls >= e.failAfter {
		e.batchCalls++
		err := e.err
		e.mu.Unlock()
		return nil, err
	}
	e.batchCalls++
	e.texts += len(texts)
	e.mu.Unlock()

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.vector(text)
	}
	return embeddings, nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	var sum float64
	for i := range emb {
		v := math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01
		emb[i] = float32(v)
		sum += v * v
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] = float32(float64(emb[i]) * norm)
		}
	}
	return emb
}

// Calls returns the number of EmbedBatch requests made (Embed counts as one).
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchCalls
}

// TextsEmbedded returns the number of texts successfully embedded.
func (e *MockEmbedder) TextsEmbedded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.texts
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// Factory returns a Factory that always hands out this embedder.
func (e *MockEmbedder) Factory() Factory {
	return func(string) (Embedder, error) { return e, nil }
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
