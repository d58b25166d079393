// Package models defines core data structures for library documents, chunks, and index records.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a library document as handed over by the application shell.
type Document struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	ContentType      string    `json:"content_type"`
	RelativePath     string    `json:"relative_path"`
	CreatedAt        time.Time `json:"created_at"`
	LastOpenedAt     time.Time `json:"last_opened_at,omitempty"`
}

// IndexRecord is the persisted metadata row for a document that has been indexed at least once.
// SourceSignature reflects the file state at the last successful (re)index.
type IndexRecord struct {
	DocumentID      uuid.UUID `json:"document_id" db:"document_id"`
	Title           string    `json:"title" db:"title"`
	ContentType     string    `json:"content_type" db:"content_type"`
	RelativePath    string    `json:"relative_path" db:"relative_path"`
	SourceSignature string    `json:"source_signature" db:"source_signature"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// NewIndexRecord builds the metadata row for doc with the given source signature.
func NewIndexRecord(doc *Document, signature string) *IndexRecord {
	return &IndexRecord{
		DocumentID:      doc.ID,
		Title:           doc.Title,
		ContentType:     doc.ContentType,
		RelativePath:    doc.RelativePath,
		SourceSignature: signature,
		CreatedAt:       doc.CreatedAt,
	}
}

// Document converts the record back into a library document (used when only the index knows it).
func (r *IndexRecord) Document() *Document {
	return &Document{
		ID:           r.DocumentID,
		Title:        r.Title,
		ContentType:  r.ContentType,
		RelativePath: r.RelativePath,
		CreatedAt:    r.CreatedAt,
	}
}

// EmbeddingRecord is one persisted chunk with its embedding. Rows are created in bulk and
// never updated in place.
type EmbeddingRecord struct {
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	PageStart  *int      `json:"page_start,omitempty" db:"page_start"`
	PageEnd    *int      `json:"page_end,omitempty" db:"page_end"`
	Embedding  []float32 `json:"-" db:"embedding"`
	Text       string    `json:"text" db:"text"`
}

// ChunkResult is a single nearest-neighbour hit. Smaller Distance means more similar.
type ChunkResult struct {
	ChunkIndex int     `json:"chunk_index"`
	PageStart  *int    `json:"page_start,omitempty"`
	PageEnd    *int    `json:"page_end,omitempty"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
}
