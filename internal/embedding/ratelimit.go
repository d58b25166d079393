package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// NewLimiter returns a token bucket for embedding requests, or nil when requestsPerSecond is
// not positive (unlimited).
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// RateLimited waits on a shared limiter before every request of the wrapped embedder.
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps inner. A nil limiter returns inner unchanged.
func NewRateLimited(inner Embedder, limiter *rate.Limiter) Embedder {
	if limiter == nil {
		return inner
	}
	return &RateLimited{Embedder: inner, limiter: limiter}
}

// Embed waits for a token, then embeds text.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.Embedder.Embed(ctx, text)
}

// EmbedBatch waits for a token, then embeds the batch in one request.
func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.Embedder.EmbedBatch(ctx, texts)
}

// RateLimitedFactory wraps every embedder built by f with the same limiter.
func RateLimitedFactory(f Factory, limiter *rate.Limiter) Factory {
	if limiter == nil {
		return f
	}
	return func(apiKey string) (Embedder, error) {
		e, err := f(apiKey)
		if err != nil {
			return nil, err
		}
		return NewRateLimited(e, limiter), nil
	}
}
