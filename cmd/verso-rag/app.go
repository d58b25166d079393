package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/chat"
	"github.com/verso-reads/verso-rag/internal/config"
	"github.com/verso-reads/verso-rag/internal/credentials"
	"github.com/verso-reads/verso-rag/internal/embedding"
	"github.com/verso-reads/verso-rag/internal/indexer"
	"github.com/verso-reads/verso-rag/internal/library"
	"github.com/verso-reads/verso-rag/internal/metrics"
	"github.com/verso-reads/verso-rag/internal/query"
	"github.com/verso-reads/verso-rag/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     storage.Store
	Secrets   credentials.Store
	Keys      *credentials.Resolver
	Metrics   *metrics.Metrics
	Manager   *indexer.Manager
	Queries   *query.Service
	Assistant *chat.Assistant
	Library   *library.Library
}

// Close stops background ingestion and releases the stores.
func (c *Components) Close() {
	if c.Manager != nil {
		_ = c.Manager.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if closer, ok := c.Secrets.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DatabasePath,
		storage.WithDimensions(cfg.Embedding.Dimensions),
		storage.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var secrets credentials.Store
	if cfg.Storage.Driver == "memory" {
		secrets = credentials.NewMemoryStore()
	} else {
		sqliteSecrets, err := credentials.OpenSQLiteStore(cfg.Storage.SecretsPath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to open secure store: %w", err)
		}
		secrets = sqliteSecrets
	}
	keys := credentials.NewResolver(secrets, cfg.Credentials.Service, cfg.Credentials.Account, cfg.Credentials.EnvVar, logger)

	m := metrics.New()
	factory := embedding.RateLimitedFactory(
		embedding.NewOpenAIFactory(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		}, embedding.WithLogger(logger), embedding.WithMetrics(m)),
		embedding.NewLimiter(cfg.Embedding.RequestsPerSecond, cfg.Embedding.Burst),
	)

	manager := indexer.NewManager(store, factory, keys, nil,
		indexer.WithLogger(logger),
		indexer.WithMetrics(m),
		indexer.WithChunker(indexer.NewChunker(cfg.Chunking.MaxCharacters, cfg.Chunking.Overlap)),
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
	)

	queries := query.NewService(store, factory,
		query.WithLogger(logger),
		query.WithMetrics(m),
		query.WithCache(embedding.NewEmbeddingCache(cfg.Embedding.CacheSize), cfg.Embedding.Model),
		query.WithMaxChunks(cfg.Retrieval.MaxChunks),
	)

	// Chat shares the embedding endpoint so one base URL covers a compatible gateway.
	streamers := chat.NewClientFactory(chat.ClientConfig{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Chat.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)
	assistant := chat.NewAssistant(streamers, queries, keys, cfg.Chat.SystemPrompt, cfg.Retrieval.MaxChunks, logger)

	return &Components{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Secrets:   secrets,
		Keys:      keys,
		Metrics:   m,
		Manager:   manager,
		Queries:   queries,
		Assistant: assistant,
		Library:   library.New(cfg.Library.Root),
	}, nil
}
