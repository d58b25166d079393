package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/vector"
)

// MemoryStore implements Store in memory using brute-force cosine search.
// Suitable for tests and ephemeral runs.
type MemoryStore struct {
	dimensions int

	mu        sync.RWMutex
	documents map[uuid.UUID]*memoryDocument
}

type memoryDocument struct {
	record     models.IndexRecord
	embeddings []models.EmbeddingRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		dimensions: o.dimensions,
		documents:  make(map[uuid.UUID]*memoryDocument),
	}
}

// Signature returns the stored source signature for id.
func (m *MemoryStore) Signature(_ context.Context, id uuid.UUID) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return "", false, nil
	}
	return doc.record.SourceSignature, true, nil
}

// Document returns a copy of the index record for id.
func (m *MemoryStore) Document(_ context.Context, id uuid.UUID) (*models.IndexRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := doc.record
	return &rec, nil
}

// ListDocuments returns copies of all records ordered by most recent update.
func (m *MemoryStore) ListDocuments(_ context.Context) ([]*models.IndexRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]*models.IndexRecord, 0, len(m.documents))
	for _, doc := range m.documents {
		rec := doc.record
		recs = append(recs, &rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	return recs, nil
}

func (m *MemoryStore) upsertLocked(rec *models.IndexRecord) *memoryDocument {
	now := time.Now()
	doc, ok := m.documents[rec.DocumentID]
	if ok {
		rec.CreatedAt = doc.record.CreatedAt
	} else {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		doc = &memoryDocument{}
		m.documents[rec.DocumentID] = doc
	}
	rec.UpdatedAt = now
	doc.record = *rec
	return doc
}

// UpsertDocument inserts or replaces the metadata row for rec.DocumentID.
func (m *MemoryStore) UpsertDocument(_ context.Context, rec *models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(rec)
	return nil
}

// ClearEmbeddings removes every embedding of id.
func (m *MemoryStore) ClearEmbeddings(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.documents[id]; ok {
		doc.embeddings = nil
	}
	return nil
}

func copyRecords(id uuid.UUID, records []models.EmbeddingRecord) []models.EmbeddingRecord {
	out := make([]models.EmbeddingRecord, len(records))
	for i, rec := range records {
		emb := make([]float32, len(rec.Embedding))
		copy(emb, rec.Embedding)
		rec.DocumentID = id
		rec.Embedding = emb
		out[i] = rec
	}
	return out
}

// InsertEmbeddings appends records for id. The document must have an index record.
func (m *MemoryStore) InsertEmbeddings(_ context.Context, id uuid.UUID, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, m.dimensions); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.embeddings = append(doc.embeddings, copyRecords(id, records)...)
	return nil
}

// ReplaceEmbeddings upserts rec and swaps in records under one lock.
func (m *MemoryStore) ReplaceEmbeddings(_ context.Context, rec *models.IndexRecord, records []models.EmbeddingRecord) error {
	if err := validateRecords(records, m.dimensions); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.upsertLocked(rec)
	doc.embeddings = copyRecords(rec.DocumentID, records)
	return nil
}

// Search returns the k nearest chunks of id by cosine distance.
func (m *MemoryStore) Search(_ context.Context, id uuid.UUID, query []float32, k int) ([]models.ChunkResult, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok || len(doc.embeddings) == 0 {
		return nil, nil
	}

	candidates := make([]vector.Candidate, 0, len(doc.embeddings))
	for i, rec := range doc.embeddings {
		if len(rec.Embedding) != len(query) {
			continue
		}
		candidates = append(candidates, vector.Candidate{
			ChunkIndex: rec.ChunkIndex,
			Distance:   vector.CosineDistance(query, rec.Embedding),
			Position:   i,
		})
	}

	top := vector.TopK(candidates, k)
	results := make([]models.ChunkResult, 0, len(top))
	for _, c := range top {
		rec := doc.embeddings[c.Position]
		results = append(results, models.ChunkResult{
			ChunkIndex: rec.ChunkIndex,
			PageStart:  rec.PageStart,
			PageEnd:    rec.PageEnd,
			Text:       rec.Text,
			Distance:   c.Distance,
		})
	}
	return results, nil
}

// DeleteDocument removes id and its embeddings.
func (m *MemoryStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	return nil
}

// CountDocuments returns the number of indexed documents.
func (m *MemoryStore) CountDocuments(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.documents)), nil
}

// CountEmbeddings returns the total number of embeddings.
func (m *MemoryStore) CountEmbeddings(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, doc := range m.documents {
		n += int64(len(doc.embeddings))
	}
	return n, nil
}

// CountDocumentEmbeddings returns the number of embeddings of id.
func (m *MemoryStore) CountDocumentEmbeddings(_ context.Context, id uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.documents[id]; ok {
		return int64(len(doc.embeddings)), nil
	}
	return 0, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
