package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/chat"
	"github.com/verso-reads/verso-rag/internal/credentials"
	"github.com/verso-reads/verso-rag/internal/embedding"
	"github.com/verso-reads/verso-rag/internal/extract"
	"github.com/verso-reads/verso-rag/internal/indexer"
	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/query"
	"github.com/verso-reads/verso-rag/internal/storage"
)

type indexRequest struct {
	models.Document
	// Path overrides the library location of the document file.
	Path string `json:"path,omitempty"`
}

// DocumentStatus is the index state of one document.
type DocumentStatus struct {
	DocumentID      uuid.UUID  `json:"document_id"`
	IsIndexing      bool       `json:"is_indexing"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Indexed         bool       `json:"indexed"`
	SourceSignature string     `json:"source_signature,omitempty"`
	Chunks          int64      `json:"chunks"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type contextRequest struct {
	Query     string `json:"query"`
	MaxChunks int    `json:"max_chunks,omitempty"`
}

type contextResponse struct {
	Context string `json:"context"`
	Found   bool   `json:"found"`
}

type chatRequest struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

type keyRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc := req.Document
	if doc.ID == uuid.Nil {
		doc.ID = id
	} else if doc.ID != id {
		s.respondError(w, http.StatusBadRequest, "document id does not match the URL")
		return
	}
	path := req.Path
	if path == "" {
		if s.library == nil {
			s.respondError(w, http.StatusBadRequest, "path is required")
			return
		}
		p, err := s.library.Path(&doc)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		path = p
	}
	s.logger.Debug("index document request", zap.String("document_id", id.String()), zap.String("path", path))

	if r.URL.Query().Get("wait") != "true" {
		s.manager.Enqueue(&doc, path)
		s.respondJSON(w, http.StatusAccepted, s.documentStatus(r.Context(), id))
		return
	}
	if err := s.manager.EnsureIndexed(r.Context(), &doc, path); err != nil {
		s.logger.Warn("indexing failed", zap.String("document_id", id.String()), zap.Error(err))
		s.respondError(w, errorStatus(err), indexer.StatusMessage(err))
		return
	}
	s.respondJSON(w, http.StatusOK, s.documentStatus(r.Context(), id))
}

func (s *Server) documentStatus(ctx context.Context, id uuid.UUID) DocumentStatus {
	st := s.manager.Status().Get(id)
	out := DocumentStatus{DocumentID: id, IsIndexing: st.IsIndexing, ErrorMessage: st.ErrorMessage}
	rec, err := s.store.Document(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("status: document lookup failed", zap.Error(err))
		}
		return out
	}
	out.Indexed = true
	out.SourceSignature = rec.SourceSignature
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt
		out.UpdatedAt = &updated
	}
	if n, err := s.store.CountDocumentEmbeddings(ctx, id); err == nil {
		out.Chunks = n
	}
	return out
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, s.documentStatus(r.Context(), id))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete document request", zap.String("document_id", id.String()))
	if err := s.manager.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	apiKey, err := s.keys.APIKey()
	if err != nil {
		s.respondError(w, errorStatus(err), indexer.StatusMessage(err))
		return
	}
	text, found, err := s.queries.RetrieveContext(r.Context(), id, req.Query, apiKey, req.MaxChunks)
	if err != nil {
		s.logger.Warn("context retrieval failed", zap.String("document_id", id.String()), zap.Error(err))
		s.respondError(w, errorStatus(err), indexer.StatusMessage(err))
		return
	}
	s.respondJSON(w, http.StatusOK, contextResponse{Context: text, Found: found})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sse := newEventWriter(w)
	answer, err := s.assistant.Ask(r.Context(), chat.Request{
		DocumentID: id,
		Question:   req.Question,
		Context:    req.Context,
	}, func(delta string) error {
		return sse.send("", map[string]string{"delta": delta})
	})
	if err != nil {
		if !sse.started {
			s.respondError(w, errorStatus(err), indexer.StatusMessage(err))
			return
		}
		_ = sse.send("error", map[string]string{"error": indexer.StatusMessage(err)})
		return
	}
	_ = sse.send("meta", map[string]any{
		"used_retrieval": answer.UsedRetrieval,
		"context_words":  answer.ContextWords,
	})
	_ = sse.done()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.manager.Status().Subscribe()
	defer unsubscribe()

	sse := newEventWriter(w)
	for id, st := range s.manager.Status().Snapshot() {
		if err := sse.send("status", indexer.StatusEvent{DocumentID: id, Status: st}); err != nil {
			return
		}
	}
	if err := sse.open(); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.send("status", ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.store.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	chunkCount, err := s.store.CountEmbeddings(ctx)
	if err != nil {
		s.logger.Error("status: count embeddings failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	indexing := 0
	for _, st := range s.manager.Status().Snapshot() {
		if st.IsIndexing {
			indexing++
		}
	}
	resp := map[string]any{
		"documents":   docCount,
		"chunks":      chunkCount,
		"indexing":    indexing,
		"has_api_key": s.keys.HasAPIKey(),
	}

	if s.config != nil {
		cfg := s.config
		resp["config"] = map[string]any{
			"storage_driver":       cfg.Storage.Driver,
			"database_path":        cfg.Storage.DatabasePath,
			"library_root":         cfg.Library.Root,
			"embedding_model":      cfg.Embedding.Model,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"max_characters":       cfg.Chunking.MaxCharacters,
			"overlap":              cfg.Chunking.Overlap,
			"max_chunks":           cfg.Retrieval.MaxChunks,
			"chat_model":           cfg.Chat.Model,
		}
		diskBytes, err := storage.DiskUsageBytes(storage.DatabaseFiles(cfg.Storage.DatabasePath)...)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"has_api_key": s.keys.HasAPIKey()})
}

func (s *Server) handleSaveKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIKey == "" {
		s.respondError(w, http.StatusBadRequest, "api_key is required")
		return
	}
	if err := s.keys.SaveAPIKey(req.APIKey); err != nil {
		s.logger.Error("saving API key failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not save API key")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"has_api_key": s.keys.HasAPIKey()})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.keys.DeleteAPIKey(); err != nil {
		s.logger.Error("deleting API key failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "could not delete API key")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"has_api_key": s.keys.HasAPIKey()})
}

// errorStatus maps core errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, query.ErrEmptyQuery), errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, credentials.ErrMissingAPIKey):
		return http.StatusPreconditionFailed
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrInvalidDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	if _, ok := embedding.IsStatus(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
