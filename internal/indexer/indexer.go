// Package indexer turns library documents into chunk embeddings: it chunks extracted pages,
// embeds them remotely, commits them to the vector store and tracks per-document status.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/verso-reads/verso-rag/internal/credentials"
	"github.com/verso-reads/verso-rag/internal/embedding"
	"github.com/verso-reads/verso-rag/internal/extract"
	"github.com/verso-reads/verso-rag/internal/metrics"
	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/storage"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 16

// NoTextMessage is the status published when a document yields no chunks.
const NoTextMessage = "No extractable text found."

var (
	// ErrClosed is returned by EnsureIndexed after Close.
	ErrClosed = errors.New("indexer: manager closed")
	// ErrDocumentDeleted is returned by a run whose document was deleted while it was embedding.
	ErrDocumentDeleted = errors.New("indexer: document deleted during ingestion")
)

// KeyResolver supplies the API key for one ingestion run.
type KeyResolver interface {
	APIKey() (string, error)
}

// PageExtractor reads page texts from a file.
type PageExtractor interface {
	ExtractPages(path string) ([]models.PageText, error)
}

// Manager runs ingestion for documents. Concurrent requests for the same document share
// one run, which lives on the manager's context and keeps going while any caller still
// waits for it. Store mutations for one document are serialised through its gate.
type Manager struct {
	store     storage.Store
	factory   embedding.Factory
	keys      KeyResolver
	extractor PageExtractor
	chunker   *Chunker
	batchSize int
	status    *StatusBoard
	logger    *zap.Logger
	metrics   *metrics.Metrics

	group singleflight.Group

	mu        sync.Mutex
	jobs      map[uuid.UUID]context.CancelFunc
	flights   map[uuid.UUID]*flight
	gates     map[uuid.UUID]*gate
	closed    bool
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records ingestion outcomes.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithChunker replaces the default 1200/200 chunker.
func WithChunker(c *Chunker) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.chunker = c
		}
	}
}

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithStatusBoard shares an existing status board.
func WithStatusBoard(b *StatusBoard) ManagerOption {
	return func(m *Manager) {
		if b != nil {
			m.status = b
		}
	}
}

// NewManager creates a manager. extractor may be nil, in which case the default extractor is used.
func NewManager(store storage.Store, factory embedding.Factory, keys KeyResolver, extractor PageExtractor, opts ...ManagerOption) *Manager {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:     store,
		factory:   factory,
		keys:      keys,
		extractor: extractor,
		chunker:   NewChunker(DefaultMaxCharacters, DefaultOverlap),
		batchSize: DefaultBatchSize,
		status:    NewStatusBoard(),
		logger:    zap.NewNop(),
		jobs:      make(map[uuid.UUID]context.CancelFunc),
		flights:   make(map[uuid.UUID]*flight),
		gates:     make(map[uuid.UUID]*gate),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the status board.
func (m *Manager) Status() *StatusBoard {
	return m.status
}

// flight is a shared ingestion run and the number of callers waiting on it.
type flight struct {
	run     func() (any, error)
	cancel  context.CancelFunc
	waiters int
}

// gate serialises store mutations for one document. epoch moves on every delete, so a run
// that started before the delete cannot commit after it.
type gate struct {
	mu    sync.Mutex
	epoch uint64
	refs  int
}

// EnsureIndexed brings the stored embeddings of doc up to date with the file at path and
// returns when the run has finished. Unchanged files are skipped without an embedding call.
// A document without extractable text is recorded and reported through its status, not as
// an error.
//
// If ctx ends first, EnsureIndexed returns ctx.Err() and the run continues for any other
// caller. A run nobody waits for any more is cancelled.
func (m *Manager) EnsureIndexed(ctx context.Context, doc *models.Document, path string) error {
	id := doc.ID
	key := id.String()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	f, joined := m.flights[id]
	if !joined {
		f = m.newFlight(doc, path)
	}
	f.waiters++
	// flights[id] and the singleflight key are added and dropped together under m.mu, so a
	// new flight always starts its own run and a joined one always shares it.
	ch := m.group.DoChan(key, f.run)
	m.mu.Unlock()
	defer m.leave(id, f)

	if joined {
		m.logger.Debug("joined running ingestion", zap.String("document_id", key))
	}
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newFlight registers a run for doc on the manager's context. m.mu must be held.
func (m *Manager) newFlight(doc *models.Document, path string) *flight {
	ctx, cancel := context.WithCancel(m.baseCtx)
	f := &flight{cancel: cancel}
	f.run = func() (any, error) {
		defer m.wg.Done()
		defer m.finish(doc.ID, f)
		return nil, m.ingest(ctx, doc, path)
	}
	m.flights[doc.ID] = f
	m.wg.Add(1)
	return f
}

// finish drops f once its run has returned.
func (m *Manager) finish(id uuid.UUID, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flights[id] == f {
		m.dropFlight(id, f)
	}
	f.cancel()
}

// leave releases one waiter of f and cancels the run when it was the last one.
func (m *Manager) leave(id uuid.UUID, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.waiters--
	if f.waiters == 0 && m.flights[id] == f {
		m.dropFlight(id, f)
	}
}

// dropFlight cancels f and detaches it so the next call starts a fresh run. m.mu must be held.
func (m *Manager) dropFlight(id uuid.UUID, f *flight) {
	f.cancel()
	delete(m.flights, id)
	m.group.Forget(id.String())
}

func (m *Manager) acquireGate(id uuid.UUID) *gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[id]
	if !ok {
		g = &gate{}
		m.gates[id] = g
	}
	g.refs++
	return g
}

func (m *Manager) releaseGate(id uuid.UUID, g *gate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.refs--
	if g.refs == 0 && m.gates[id] == g {
		delete(m.gates, id)
	}
}

// current returns the delete epoch of g.
func (g *gate) current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// commit runs a store mutation unless the document was deleted after epoch was read.
func (g *gate) commit(epoch uint64, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return ErrDocumentDeleted
	}
	return fn()
}

// Enqueue starts ingestion in the background, as done when a document is opened. A document
// that already has a background run is left alone.
func (m *Manager) Enqueue(doc *models.Document, path string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, running := m.jobs[doc.ID]; running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.jobs[doc.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	m.status.Set(doc.ID, Status{IsIndexing: true})

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.jobs, doc.ID)
			m.mu.Unlock()
			cancel()
		}()
		err := m.EnsureIndexed(ctx, doc, path)
		if errors.Is(err, ErrClosed) {
			m.status.Set(doc.ID, Status{})
		}
		if err != nil {
			m.logger.Debug("background ingestion ended with error",
				zap.String("document_id", doc.ID.String()), zap.Error(err))
		}
	}()
}

// Cancel detaches the background job for id, if any. Its run stops unless a synchronous
// caller is still waiting for it.
func (m *Manager) Cancel(id uuid.UUID) {
	m.mu.Lock()
	cancel, ok := m.jobs[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Wait blocks until all background runs have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels all background runs and waits for them.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelAll()
	m.wg.Wait()
	return nil
}

// DeleteDocument cancels any run for id and removes its index data and status. A run that
// is still embedding when the delete lands cannot commit afterwards.
func (m *Manager) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if cancel, ok := m.jobs[id]; ok {
		cancel()
	}
	if f, ok := m.flights[id]; ok {
		m.dropFlight(id, f)
	}
	m.mu.Unlock()

	g := m.acquireGate(id)
	defer m.releaseGate(id, g)
	g.mu.Lock()
	g.epoch++
	err := m.store.DeleteDocument(ctx, id)
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to delete rag data: %w", err)
	}
	m.status.Remove(id)
	m.logger.Debug("rag data deleted", zap.String("document_id", id.String()))
	return nil
}

// ingest wraps run with status publication, logging and metrics.
func (m *Manager) ingest(ctx context.Context, doc *models.Document, path string) error {
	id := doc.ID
	start := time.Now()
	log := m.logger.With(zap.String("document_id", id.String()), zap.String("path", path))

	m.status.Set(id, Status{IsIndexing: true})
	outcome, err := m.run(ctx, doc, path, log)
	m.metrics.ObserveIngestion(outcome, time.Since(start))

	switch {
	case err == nil && outcome == metrics.OutcomeEmpty:
		m.status.Set(id, Status{ErrorMessage: NoTextMessage})
		log.Info("document has no extractable text")
	case err == nil:
		m.status.Set(id, Status{})
		if outcome == metrics.OutcomeSkipped {
			log.Debug("document unchanged, skipping")
		} else {
			log.Info("document indexed", zap.Duration("elapsed", time.Since(start)))
		}
	case outcome == metrics.OutcomeCancelled:
		m.status.Set(id, Status{})
		log.Debug("ingestion cancelled")
	default:
		m.status.Set(id, Status{ErrorMessage: StatusMessage(err)})
		log.Warn("ingestion failed", zap.Error(err))
	}
	return err
}

// run performs one ingestion and returns its outcome label.
func (m *Manager) run(ctx context.Context, doc *models.Document, path string, log *zap.Logger) (outcome string, err error) {
	g := m.acquireGate(doc.ID)
	defer m.releaseGate(doc.ID, g)
	epoch := g.current()
	if err := ctx.Err(); err != nil {
		return metrics.OutcomeCancelled, err
	}

	signature, err := FileSignature(path)
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	stored, known, err := m.store.Signature(ctx, doc.ID)
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	if known && stored == signature {
		return metrics.OutcomeSkipped, nil
	}

	// From here on the stored rows describe an older file version. A failed run clears
	// them and keeps the old signature so the next trigger retries.
	if known {
		defer func() {
			if err == nil {
				return
			}
			clearErr := g.commit(epoch, func() error {
				return m.store.ClearEmbeddings(context.WithoutCancel(ctx), doc.ID)
			})
			if clearErr != nil && !errors.Is(clearErr, ErrDocumentDeleted) {
				log.Warn("failed to clear stale embeddings", zap.Error(clearErr))
			}
		}()
	}

	apiKey, err := m.keys.APIKey()
	if err != nil {
		return metrics.OutcomeFailed, err
	}

	pages, err := m.extractor.ExtractPages(path)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("extract pages: %w", err)
	}
	chunks := m.chunker.Chunk(pages)
	log.Debug("document chunked", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))

	record := models.NewIndexRecord(doc, signature)
	if len(chunks) == 0 {
		err := g.commit(epoch, func() error { return m.store.ReplaceEmbeddings(ctx, record, nil) })
		if err != nil {
			return failure(err), err
		}
		return metrics.OutcomeEmpty, nil
	}

	records, err := m.embedChunks(ctx, apiKey, doc.ID, chunks)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return failure(err), err
	}
	err = g.commit(epoch, func() error { return m.store.ReplaceEmbeddings(ctx, record, records) })
	if err != nil {
		if errors.Is(err, ErrDocumentDeleted) {
			return metrics.OutcomeCancelled, err
		}
		return failure(err), fmt.Errorf("store embeddings: %w", err)
	}
	m.metrics.AddChunksIndexed(len(records))
	return metrics.OutcomeIndexed, nil
}

// failure labels a run error as a cancellation or a failure.
func failure(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDocumentDeleted) {
		return metrics.OutcomeCancelled
	}
	return metrics.OutcomeFailed
}

// embedChunks embeds chunks in sequential batches and pairs each chunk with its vector.
func (m *Manager) embedChunks(ctx context.Context, apiKey string, id uuid.UUID, chunks []models.Chunk) ([]models.EmbeddingRecord, error) {
	embedder, err := m.factory(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	defer embedder.Close()

	records := make([]models.EmbeddingRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+m.batchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vecs), len(batch))
		}
		for i, ch := range batch {
			rec := ch.Record(vecs[i])
			rec.DocumentID = id
			records = append(records, rec)
		}
	}
	return records, nil
}

// StatusMessage renders an ingestion error for display next to the document.
func StatusMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, extract.ErrInvalidDocument):
		return "Unable to read document text."
	case errors.Is(err, storage.ErrStoreUnavailable):
		return "Search index unavailable."
	case errors.Is(err, credentials.ErrMissingAPIKey):
		return "Missing OpenAI API key."
	}
	var se *embedding.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	return err.Error()
}
