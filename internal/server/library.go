package server

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/storage"
)

// OnLibraryChange re-indexes a changed library file, but only for documents that have been
// indexed before. New documents are indexed when they are first opened.
func (s *Server) OnLibraryChange(id uuid.UUID, path string) {
	rec, err := s.store.Document(context.Background(), id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("library change: lookup failed", zap.String("document_id", id.String()), zap.Error(err))
		}
		return
	}
	s.logger.Debug("library change: re-indexing", zap.String("document_id", id.String()), zap.String("path", path))
	s.manager.Enqueue(rec.Document(), path)
}

// OnLibraryRemove drops the index data of a document whose file left the library.
func (s *Server) OnLibraryRemove(id uuid.UUID) {
	if err := s.manager.DeleteDocument(context.Background(), id); err != nil {
		s.logger.Warn("library remove: delete failed", zap.String("document_id", id.String()), zap.Error(err))
	}
}
