// Package server provides the local HTTP bridge between the reading app and the RAG core.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/chat"
	"github.com/verso-reads/verso-rag/internal/config"
	"github.com/verso-reads/verso-rag/internal/credentials"
	"github.com/verso-reads/verso-rag/internal/indexer"
	"github.com/verso-reads/verso-rag/internal/library"
	"github.com/verso-reads/verso-rag/internal/metrics"
	"github.com/verso-reads/verso-rag/internal/query"
	"github.com/verso-reads/verso-rag/internal/storage"
)

// Deps are the components the server exposes.
type Deps struct {
	Config    *config.Config
	Store     storage.Store
	Manager   *indexer.Manager
	Queries   *query.Service
	Assistant *chat.Assistant
	Keys      *credentials.Resolver
	Library   *library.Library
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Server is the HTTP server for the verso-rag API.
type Server struct {
	config    *config.Config
	store     storage.Store
	manager   *indexer.Manager
	queries   *query.Service
	assistant *chat.Assistant
	keys      *credentials.Resolver
	library   *library.Library
	metrics   *metrics.Metrics
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:    deps.Config,
		store:     deps.Store,
		manager:   deps.Manager,
		queries:   deps.Queries,
		assistant: deps.Assistant,
		keys:      deps.Keys,
		library:   deps.Library,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	// Event streams stay open, so they skip the request timeout.
	r.Get("/api/v1/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Get("/api/v1/status", s.handleStatus)
		r.Post("/api/v1/documents/{id}/index", s.handleIndexDocument)
		r.Get("/api/v1/documents/{id}/status", s.handleDocumentStatus)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
		r.Post("/api/v1/documents/{id}/context", s.handleContext)
		r.Put("/api/v1/credentials/openai", s.handleSaveKey)
		r.Get("/api/v1/credentials/openai", s.handleKeyStatus)
		r.Delete("/api/v1/credentials/openai", s.handleDeleteKey)
	})
	// Chat answers can take longer than the request timeout.
	r.Post("/api/v1/documents/{id}/chat", s.handleChat)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
