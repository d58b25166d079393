// Package query retrieves the chunks of one document that are closest to a question and
// formats them as prompt context.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/embedding"
	"github.com/verso-reads/verso-rag/internal/metrics"
	"github.com/verso-reads/verso-rag/internal/storage"
)

// DefaultMaxChunks is the number of chunks retrieved when the caller passes zero.
const DefaultMaxChunks = 4

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Service embeds questions and searches the vector store.
type Service struct {
	store     storage.Store
	factory   embedding.Factory
	cache     *embedding.EmbeddingCache
	model     string
	maxChunks int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records retrieval outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache reuses query embeddings. model scopes the cache keys.
func WithCache(c *embedding.EmbeddingCache, model string) Option {
	return func(s *Service) {
		s.cache = c
		s.model = model
	}
}

// WithMaxChunks changes the default number of retrieved chunks.
func WithMaxChunks(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChunks = n
		}
	}
}

// NewService creates a query service on top of store.
func NewService(store storage.Store, factory embedding.Factory, opts ...Option) *Service {
	s := &Service{
		store:     store,
		factory:   factory,
		maxChunks: DefaultMaxChunks,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RetrieveContext returns the formatted context for question, or false when the document
// has no chunks to offer. maxChunks <= 0 uses the service default.
func (s *Service) RetrieveContext(ctx context.Context, id uuid.UUID, question, apiKey string, maxChunks int) (string, bool, error) {
	question, err := ProcessQuery(question)
	if err != nil {
		return "", false, err
	}
	if maxChunks <= 0 {
		maxChunks = s.maxChunks
	}

	vec, err := s.embedQuery(ctx, question, apiKey)
	if err != nil {
		s.metrics.ObserveRetrieval(metrics.OutcomeError)
		return "", false, err
	}
	results, err := s.store.Search(ctx, id, vec, maxChunks)
	if err != nil {
		s.metrics.ObserveRetrieval(metrics.OutcomeError)
		return "", false, fmt.Errorf("search embeddings: %w", err)
	}
	if len(results) == 0 {
		s.metrics.ObserveRetrieval(metrics.OutcomeNone)
		s.logger.Debug("no context found", zap.String("document_id", id.String()))
		return "", false, nil
	}
	s.metrics.ObserveRetrieval(metrics.OutcomeFound)
	s.logger.Debug("context retrieved",
		zap.String("document_id", id.String()),
		zap.Int("chunks", len(results)),
		zap.Float64("best_distance", results[0].Distance))
	return FormatContext(results), true, nil
}

// ContextOrEmpty is RetrieveContext for chat callers: any failure is logged and treated as
// "no context" so the chat turn can go on.
func (s *Service) ContextOrEmpty(ctx context.Context, id uuid.UUID, question, apiKey string, maxChunks int) string {
	text, _, err := s.RetrieveContext(ctx, id, question, apiKey, maxChunks)
	if err != nil {
		s.logger.Warn("rag retrieval failed", zap.String("document_id", id.String()), zap.Error(err))
		return ""
	}
	return text
}

func (s *Service) embedQuery(ctx context.Context, question, apiKey string) ([]float32, error) {
	key := embedding.CacheKey(s.model, question)
	if vec, ok := s.cache.Get(key); ok {
		return vec, nil
	}
	embedder, err := s.factory(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	defer embedder.Close()

	vecs, err := embedder.EmbedBatch(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected 1", len(vecs))
	}
	s.cache.Set(key, vecs[0])
	return vecs[0], nil
}

// ProcessQuery trims the question and rejects blank ones.
func ProcessQuery(question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuery
	}
	return question, nil
}
