package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewLimiter_Unlimited(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 5))
	inner := NewMockEmbedder(4)
	assert.Same(t, inner, NewRateLimited(inner, nil))
}

func TestRateLimited_PassesThrough(t *testing.T) {
	inner := NewMockEmbedder(4)
	limited := NewRateLimited(inner, NewLimiter(1000, 10))

	vecs, err := limited.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	_, err = limited.Embed(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls())
	assert.Equal(t, 4, limited.Dimensions())
}

func TestRateLimited_HonoursContext(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limited := NewRateLimited(NewMockEmbedder(4), limiter)

	_, err := limited.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Embed(ctx, "second")
	assert.Error(t, err, "second call should not get a token before the deadline")
}

func TestRateLimitedFactory(t *testing.T) {
	inner := NewMockEmbedder(4)
	f := RateLimitedFactory(inner.Factory(), NewLimiter(1000, 1))
	e, err := f("key")
	require.NoError(t, err)
	_, ok := e.(*RateLimited)
	assert.True(t, ok)
}
