package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/vector"
)

// SQLiteStore implements Store on a single SQLite file. The database is opened on first
// use and kept open; a failed open is remembered and reported on every later call.
type SQLiteStore struct {
	path       string
	dimensions int
	logger     *zap.Logger

	openOnce sync.Once
	openErr  error
	db       *sql.DB

	// mu serialises mutations; searches share it.
	mu sync.RWMutex
}

// NewSQLiteStore returns a store for the database at dbPath without touching the disk.
func NewSQLiteStore(dbPath string, opts ...Option) *SQLiteStore {
	o := buildOptions(opts)
	return &SQLiteStore{
		path:       dbPath,
		dimensions: o.dimensions,
		logger:     o.logger,
	}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) handle() (*sql.DB, error) {
	s.openOnce.Do(func() {
		db, err := openDatabase(s.path)
		if err != nil {
			s.openErr = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			s.logger.Error("failed to open rag store", zap.String("path", s.path), zap.Error(err))
			return
		}
		s.db = db
		s.logger.Debug("rag store opened", zap.String("path", s.path))
	})
	return s.db, s.openErr
}

// openDatabase opens or creates the database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rag_documents (
		document_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content_type TEXT NOT NULL,
		relative_path TEXT NOT NULL,
		source_signature TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rag_embeddings (
		chunk_id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		page_start INTEGER,
		page_end INTEGER,
		embedding BLOB NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (document_id) REFERENCES rag_documents(document_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_rag_embeddings_document_chunk ON rag_embeddings(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// Signature returns the stored source signature for id.
func (s *SQLiteStore) Signature(ctx context.Context, id uuid.UUID) (string, bool, error) {
	db, err := s.handle()
	if err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sig string
	err = db.QueryRowContext(ctx,
		`SELECT source_signature FROM rag_documents WHERE document_id = ? LIMIT 1`, id.String(),
	).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read signature: %w", err)
	}
	return sig, true, nil
}

const documentColumns = `document_id, title, content_type, relative_path, source_signature, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.IndexRecord, error) {
	var (
		rec models.IndexRecord
		id  string
	)
	if err := row.Scan(&id, &rec.Title, &rec.ContentType, &rec.RelativePath,
		&rec.SourceSignature, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}
	rec.DocumentID = parsed
	return &rec, nil
}

// Document returns the index record for id, or ErrNotFound.
func (s *SQLiteStore) Document(ctx context.Context, id uuid.UUID) (*models.IndexRecord, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM rag_documents WHERE document_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListDocuments returns all index records ordered by most recent update.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*models.IndexRecord, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM rag_documents ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.IndexRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func upsertDocument(ctx context.Context, ex execer, rec *models.IndexRecord) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err := ex.ExecContext(ctx,
		`INSERT INTO rag_documents (`+documentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET
			title = excluded.title,
			content_type = excluded.content_type,
			relative_path = excluded.relative_path,
			source_signature = excluded.source_signature,
			updated_at = excluded.updated_at`,
		rec.DocumentID.String(), rec.Title, rec.ContentType, rec.RelativePath,
		rec.SourceSignature, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func clearEmbeddings(ctx context.Context, ex execer, id uuid.UUID) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM rag_embeddings WHERE document_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return nil
}

func insertEmbeddings(ctx context.Context, ex execer, id uuid.UUID, records []models.EmbeddingRecord) error {
	stmt, err := ex.PrepareContext(ctx,
		`INSERT INTO rag_embeddings (document_id, chunk_index, page_start, page_end, embedding, text)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, id.String(), rec.ChunkIndex,
			nullableInt(rec.PageStart), nullableInt(rec.PageEnd),
			vector.Encode(rec.Embedding), rec.Text); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", rec.ChunkIndex, err)
		}
	}
	return nil
}

// UpsertDocument inserts or replaces the metadata row for rec.DocumentID.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, rec *models.IndexRecord) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertDocument(ctx, db, rec)
}

// ClearEmbeddings removes every embedding row of id. Clearing an unknown document is a no-op.
func (s *SQLiteStore) ClearEmbeddings(ctx context.Context, id uuid.UUID) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return clearEmbeddings(ctx, db, id)
}

// InsertEmbeddings adds records for id in a single transaction.
func (s *SQLiteStore) InsertEmbeddings(ctx context.Context, id uuid.UUID, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, s.dimensions); err != nil {
		return err
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertEmbeddings(ctx, tx, id, records); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceEmbeddings upserts rec, clears the old rows and inserts records in one transaction.
// Readers see either the previous generation or the new one.
func (s *SQLiteStore) ReplaceEmbeddings(ctx context.Context, rec *models.IndexRecord, records []models.EmbeddingRecord) error {
	if err := validateRecords(records, s.dimensions); err != nil {
		return err
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertDocument(ctx, tx, rec); err != nil {
		return err
	}
	if err := clearEmbeddings(ctx, tx, rec.DocumentID); err != nil {
		return err
	}
	if len(records) > 0 {
		if err := insertEmbeddings(ctx, tx, rec.DocumentID, records); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search scans the document's rows and returns the k nearest by cosine distance.
func (s *SQLiteStore) Search(ctx context.Context, id uuid.UUID, query []float32, k int) ([]models.ChunkResult, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := db.QueryContext(ctx,
		`SELECT chunk_index, page_start, page_end, embedding, text
		 FROM rag_embeddings WHERE document_id = ? ORDER BY chunk_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var (
		hits       []models.ChunkResult
		candidates []vector.Candidate
	)
	for rows.Next() {
		var (
			hit        models.ChunkResult
			start, end sql.NullInt64
			blob       []byte
		)
		if err := rows.Scan(&hit.ChunkIndex, &start, &end, &blob, &hit.Text); err != nil {
			return nil, err
		}
		emb, err := vector.Decode(blob)
		if err != nil {
			return nil, err
		}
		if len(emb) != len(query) {
			s.logger.Debug("skipping embedding with mismatched dimension",
				zap.String("document_id", id.String()),
				zap.Int("chunk_index", hit.ChunkIndex),
				zap.Int("dimension", len(emb)))
			continue
		}
		hit.PageStart = intFromNull(start)
		hit.PageEnd = intFromNull(end)
		hit.Distance = vector.CosineDistance(query, emb)
		candidates = append(candidates, vector.Candidate{
			ChunkIndex: hit.ChunkIndex,
			Distance:   hit.Distance,
			Position:   len(hits),
		})
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := vector.TopK(candidates, k)
	results := make([]models.ChunkResult, 0, len(top))
	for _, c := range top {
		results = append(results, hits[c.Position])
	}
	return results, nil
}

// DeleteDocument removes the metadata row and all embeddings of id.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := clearEmbeddings(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rag_documents WHERE document_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	err = db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// CountDocuments returns the number of indexed documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM rag_documents`)
}

// CountEmbeddings returns the total number of embedding rows.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM rag_embeddings`)
}

// CountDocumentEmbeddings returns the number of embedding rows of id.
func (s *SQLiteStore) CountDocumentEmbeddings(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM rag_embeddings WHERE document_id = ?`, id.String())
}

// Close closes the database connection if it was opened.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	return models.IntPtr(int(n.Int64))
}
