package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-reads/verso-rag/internal/embedding"
	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/storage"
)

func seedDocument(t *testing.T, store storage.Store, emb embedding.Embedder, texts []string, pages [][2]int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	records := make([]models.EmbeddingRecord, len(texts))
	for i, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		records[i] = models.EmbeddingRecord{
			DocumentID: id,
			ChunkIndex: i,
			Embedding:  vec,
			Text:       text,
		}
		if pages != nil {
			records[i].PageStart = models.IntPtr(pages[i][0])
			records[i].PageEnd = models.IntPtr(pages[i][1])
		}
	}
	rec := &models.IndexRecord{DocumentID: id, Title: "Doc", SourceSignature: "1-1"}
	require.NoError(t, store.ReplaceEmbeddings(ctx, rec, records))
	return id
}

func TestRetrieveContext_Found(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := embedding.NewMockEmbedder(8)
	texts := []string{"whales sing", "rivers flow to the sea", "mountains are tall"}
	id := seedDocument(t, store, emb, texts, [][2]int{{1, 1}, {2, 3}, {4, 4}})
	svc := NewService(store, emb.Factory())

	text, found, err := svc.RetrieveContext(context.Background(), id, "  rivers flow to the sea ", "sk-test", 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Page 2-3:\nrivers flow to the sea", text)
}

func TestRetrieveContext_DefaultMaxChunks(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := embedding.NewMockEmbedder(8)
	texts := make([]string, 6)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d", i)
	}
	id := seedDocument(t, store, emb, texts, nil)
	svc := NewService(store, emb.Factory())

	text, found, err := svc.RetrieveContext(context.Background(), id, "chunk number 2", "sk-test", 0)
	require.NoError(t, err)
	require.True(t, found)
	blocks := strings.Split(text, "\n\n")
	assert.Len(t, blocks, DefaultMaxChunks)
	assert.Equal(t, "Section 1:\nchunk number 2", blocks[0])
	for i, b := range blocks {
		assert.True(t, strings.HasPrefix(b, fmt.Sprintf("Section %d:\n", i+1)), b)
	}
}

func TestRetrieveContext_NoChunks(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := embedding.NewMockEmbedder(8)
	svc := NewService(store, emb.Factory())

	text, found, err := svc.RetrieveContext(context.Background(), uuid.New(), "anything", "sk-test", 4)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, text)
}

func TestRetrieveContext_EmptyQuery(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), embedding.NewMockEmbedder(8).Factory())
	_, _, err := svc.RetrieveContext(context.Background(), uuid.New(), "   ", "sk-test", 4)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrieveContext_CachesQueryEmbedding(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := embedding.NewMockEmbedder(8)
	id := seedDocument(t, store, emb, []string{"one", "two"}, nil)
	cache := embedding.NewEmbeddingCache(8)
	svc := NewService(store, emb.Factory(), WithCache(cache, "text-embedding-3-small"))

	before := emb.Calls()
	for i := 0; i < 3; i++ {
		_, found, err := svc.RetrieveContext(context.Background(), id, "one", "sk-test", 2)
		require.NoError(t, err)
		require.True(t, found)
	}
	assert.Equal(t, before+1, emb.Calls(), "repeated questions should hit the cache")
	assert.Equal(t, 1, cache.Len())
}

func TestRetrieveContext_EmbeddingFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := embedding.NewMockEmbedder(8)
	id := seedDocument(t, store, emb, []string{"one"}, nil)
	apiErr := &embedding.StatusError{StatusCode: 429, Message: "Rate limit reached"}
	emb.FailAfter(0, apiErr)
	svc := NewService(store, emb.Factory())

	_, found, err := svc.RetrieveContext(context.Background(), id, "one", "sk-test", 2)
	require.Error(t, err)
	assert.False(t, found)
	code, ok := embedding.IsStatus(err)
	assert.True(t, ok)
	assert.Equal(t, 429, code)

	assert.Empty(t, svc.ContextOrEmpty(context.Background(), id, "one", "sk-test", 2))
}

func TestRetrieveContext_FactoryFailure(t *testing.T) {
	boom := errors.New("no client")
	factory := func(string) (embedding.Embedder, error) { return nil, boom }
	svc := NewService(storage.NewMemoryStore(), factory)

	_, _, err := svc.RetrieveContext(context.Background(), uuid.New(), "question", "", 4)
	assert.ErrorIs(t, err, boom)
}

func TestContextOrEmpty_Found(t *testing.T) {
	store := storage.NewMemoryStore()
	emb := embedding.NewMockEmbedder(8)
	id := seedDocument(t, store, emb, []string{"alpha"}, [][2]int{{7, 7}})
	svc := NewService(store, emb.Factory(), WithMaxChunks(2))

	assert.Equal(t, "Page 7:\nalpha", svc.ContextOrEmpty(context.Background(), id, "alpha", "sk-test", 0))
}
