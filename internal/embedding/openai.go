package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/metrics"
)

// DefaultModel is the remote embedding model.
const DefaultModel = "text-embedding-3-small"

// ErrEmptyAPIKey is returned when an embedder is built without a key.
var ErrEmptyAPIKey = errors.New("empty OpenAI API key")

// OpenAIConfig configures OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses the public endpoint
	Model      string
	Dimensions int // expected vector length; 0 accepts whatever the model returns
	Timeout    time.Duration
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// OpenAIOption configures OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records every request outcome.
func WithMetrics(m *metrics.Metrics) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.metrics = m }
}

// NewOpenAIEmbedder builds a client for cfg.
func NewOpenAIEmbedder(cfg OpenAIConfig, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	e := &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewOpenAIFactory returns a Factory that builds embedders sharing cfg and opts.
func NewOpenAIFactory(cfg OpenAIConfig, opts ...OpenAIOption) Factory {
	return func(apiKey string) (Embedder, error) {
		c := cfg
		c.APIKey = apiKey
		return NewOpenAIEmbedder(c, opts...)
	}
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The response is reordered by item index and must
// contain exactly one vector per input.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	e.metrics.ObserveEmbeddingRequest(err)
	if err != nil {
		e.logger.Warn("embedding request failed",
			zap.String("model", e.model),
			zap.Int("inputs", len(texts)),
			zap.Error(err))
		return nil, TranslateError("embedding request", err)
	}
	e.logger.Debug("embedding request completed",
		zap.String("model", e.model),
		zap.Int("inputs", len(texts)),
		zap.Duration("elapsed", time.Since(start)))

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts))
	}
	items := resp.Data
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	vecs := make([][]float32, len(items))
	for i, item := range items {
		if item.Index != i {
			return nil, fmt.Errorf("embedding response missing index %d", i)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("embedding %d is empty", i)
		}
		if e.dimensions > 0 && len(item.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(item.Embedding), e.dimensions)
		}
		vecs[i] = item.Embedding
	}
	return vecs, nil
}

// Dimensions returns the expected vector length (0 when unconstrained).
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no per-embedder resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
