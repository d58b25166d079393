// Package storage persists per-document index records and chunk embeddings, and answers
// nearest-neighbour queries scoped to one document.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/models"
)

var (
	// ErrStoreUnavailable is returned by every call after the store failed to open.
	ErrStoreUnavailable = errors.New("rag store unavailable")
	// ErrNotFound is returned when a document has no index record.
	ErrNotFound = errors.New("document not indexed")
	// ErrInvalidEmbedding marks a malformed embedding row (wrong dimension or empty text).
	ErrInvalidEmbedding = errors.New("invalid embedding record")
)

// Store is the vector store used by ingestion and retrieval.
type Store interface {
	// Signature returns the stored source signature, or false when the document is unknown.
	Signature(ctx context.Context, id uuid.UUID) (string, bool, error)
	Document(ctx context.Context, id uuid.UUID) (*models.IndexRecord, error)
	ListDocuments(ctx context.Context) ([]*models.IndexRecord, error)
	// UpsertDocument inserts or replaces the metadata row (last write wins).
	UpsertDocument(ctx context.Context, rec *models.IndexRecord) error
	ClearEmbeddings(ctx context.Context, id uuid.UUID) error
	// InsertEmbeddings adds rows in one transaction; one malformed row fails the whole call.
	InsertEmbeddings(ctx context.Context, id uuid.UUID, records []models.EmbeddingRecord) error
	// ReplaceEmbeddings upserts rec and swaps the document's rows for records atomically.
	ReplaceEmbeddings(ctx context.Context, rec *models.IndexRecord, records []models.EmbeddingRecord) error
	// Search returns up to k chunks of one document ordered by ascending cosine distance.
	Search(ctx context.Context, id uuid.UUID, query []float32, k int) ([]models.ChunkResult, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	CountDocuments(ctx context.Context) (int64, error)
	CountEmbeddings(ctx context.Context) (int64, error)
	CountDocumentEmbeddings(ctx context.Context, id uuid.UUID) (int64, error)
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	dimensions int
	logger     *zap.Logger
}

// WithDimensions fixes the embedding dimension; rows of any other length are rejected.
// Zero accepts any non-empty vector as long as a batch is consistent.
func WithDimensions(n int) Option {
	return func(o *options) { o.dimensions = n }
}

// WithLogger sets the logger for store diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Open creates the store for driver ("sqlite" or "memory"). The sqlite store opens its
// database lazily on first use.
func Open(driver, path string, opts ...Option) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		if path == "" {
			return nil, fmt.Errorf("sqlite store requires a database path")
		}
		return NewSQLiteStore(path, opts...), nil
	case "memory":
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// validateRecords checks rows before any of them are written.
func validateRecords(records []models.EmbeddingRecord, dimensions int) error {
	want := dimensions
	for i, rec := range records {
		if strings.TrimSpace(rec.Text) == "" {
			return fmt.Errorf("%w: row %d (chunk %d) has empty text", ErrInvalidEmbedding, i, rec.ChunkIndex)
		}
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("%w: row %d (chunk %d) has no embedding", ErrInvalidEmbedding, i, rec.ChunkIndex)
		}
		if want == 0 {
			want = len(rec.Embedding)
		}
		if len(rec.Embedding) != want {
			return fmt.Errorf("%w: row %d (chunk %d) has dimension %d, expected %d",
				ErrInvalidEmbedding, i, rec.ChunkIndex, len(rec.Embedding), want)
		}
	}
	return nil
}
