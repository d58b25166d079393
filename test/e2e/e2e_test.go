package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verso-reads/verso-rag/internal/credentials"
	"github.com/verso-reads/verso-rag/internal/embedding"
	"github.com/verso-reads/verso-rag/internal/indexer"
	"github.com/verso-reads/verso-rag/internal/library"
	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/query"
	"github.com/verso-reads/verso-rag/internal/storage"
)

const (
	e2eDocuments  = 40
	e2eDimensions = 16
	e2eAPIKey     = "sk-e2e"
)

type e2eEnv struct {
	lib      *library.Library
	store    storage.Store
	embedder *embedding.MockEmbedder
	manager  *indexer.Manager
	queries  *query.Service
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewSQLiteStore(filepath.Join(dir, "RAG", "rag.sqlite3"), storage.WithDimensions(e2eDimensions))
	t.Cleanup(func() { _ = store.Close() })

	secrets := credentials.NewMemoryStore()
	if err := secrets.Write("verso-reads.openai", "openai-api-key", e2eAPIKey); err != nil {
		t.Fatal(err)
	}
	keys := credentials.NewResolver(secrets, "verso-reads.openai", "openai-api-key", "", nil)

	embedder := embedding.NewMockEmbedder(e2eDimensions)
	manager := indexer.NewManager(store, embedder.Factory(), keys, nil,
		indexer.WithChunker(indexer.NewChunker(120, 20)),
		indexer.WithBatchSize(4),
	)
	t.Cleanup(func() { _ = manager.Close() })

	return &e2eEnv{
		lib:      library.New(filepath.Join(dir, "Library")),
		store:    store,
		embedder: embedder,
		manager:  manager,
		queries:  query.NewService(store, embedder.Factory()),
	}
}

// addToLibrary writes d at its library location and returns the document and file path.
func (e *e2eEnv) addToLibrary(t *testing.T, d E2EDocument) (*models.Document, string) {
	t.Helper()
	doc := &models.Document{
		ID:               d.ID,
		Title:            d.Title,
		OriginalFilename: d.Title + d.Ext,
		RelativePath:     library.RelativePath(d.ID, d.Ext),
		CreatedAt:        time.Now().UTC(),
	}
	path, err := e.lib.Path(doc)
	if err != nil {
		t.Fatalf("library path for %s: %v", d.Signature, err)
	}
	content, err := WriteMinimalFile(d.Ext, d.Pages)
	if err != nil {
		t.Fatalf("fixture %s: %v", d.Signature, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return doc, path
}

func TestE2E_LibraryIngestionAndRetrieval(t *testing.T) {
	env := newE2EEnv(t)
	ctx := context.Background()
	corpus := BuildCorpus(e2eDocuments)

	type entry struct {
		doc  *models.Document
		path string
	}
	entries := make([]entry, 0, corpus.TotalDocs)
	for _, d := range corpus.Documents {
		doc, path := env.addToLibrary(t, d)
		entries = append(entries, entry{doc, path})
	}

	listed, err := env.lib.Documents()
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != corpus.TotalDocs {
		t.Fatalf("library lists %d documents, want %d", len(listed), corpus.TotalDocs)
	}

	for _, e := range entries {
		if err := env.manager.EnsureIndexed(ctx, e.doc, e.path); err != nil {
			t.Fatalf("index %s: %v", e.path, err)
		}
		if st := env.manager.Status().Get(e.doc.ID); st.IsIndexing || st.ErrorMessage != "" {
			t.Errorf("unexpected status after indexing %s: %+v", e.path, st)
		}
	}
	n, err := env.store.CountDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(corpus.TotalDocs) {
		t.Fatalf("store has %d documents, want %d", n, corpus.TotalDocs)
	}
	t.Logf("indexed %d documents; running %d query test cases", corpus.TotalDocs, corpus.TotalQueries)

	for _, tc := range corpus.TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			text, found, err := env.queries.RetrieveContext(ctx, tc.DocumentID, tc.Query, e2eAPIKey, 0)
			if err != nil {
				t.Fatalf("retrieve: %v", err)
			}
			if !found {
				t.Fatal("expected context")
			}
			if !strings.Contains(text, tc.Signature) {
				t.Errorf("context does not contain %s:\n%s", tc.Signature, text)
			}
			if !strings.HasPrefix(text, "Page ") {
				t.Errorf("context should start with a page label:\n%s", text)
			}
			for _, other := range corpus.Documents {
				if other.Signature != tc.Signature && strings.Contains(text, other.Signature) {
					t.Errorf("context for %s leaked %s", tc.Signature, other.Signature)
				}
			}
		})
	}
}

func TestE2E_ReindexSkipsUnchangedAndReplacesChanged(t *testing.T) {
	env := newE2EEnv(t)
	ctx := context.Background()
	corpus := BuildCorpus(len(SupportedFileExtensions))

	paths := make(map[string]string)
	docs := make(map[string]*models.Document)
	for _, d := range corpus.Documents {
		doc, path := env.addToLibrary(t, d)
		docs[d.Signature] = doc
		paths[d.Signature] = path
		if err := env.manager.EnsureIndexed(ctx, doc, path); err != nil {
			t.Fatalf("index %s: %v", path, err)
		}
	}
	calls := env.embedder.Calls()

	for sig, doc := range docs {
		if err := env.manager.EnsureIndexed(ctx, doc, paths[sig]); err != nil {
			t.Fatal(err)
		}
	}
	if got := env.embedder.Calls(); got != calls {
		t.Errorf("unchanged documents were re-embedded: %d calls, want %d", got, calls)
	}

	changed := corpus.Documents[0]
	changed.Pages = []string{changed.Signature + " A completely rewritten opening about harbour cranes."}
	_, path := env.addToLibrary(t, changed)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if err := env.manager.EnsureIndexed(ctx, docs[changed.Signature], path); err != nil {
		t.Fatal(err)
	}
	text, found, err := env.queries.RetrieveContext(ctx, changed.ID, "harbour cranes", e2eAPIKey, 4)
	if err != nil || !found {
		t.Fatalf("retrieve after change: found=%v err=%v", found, err)
	}
	if !strings.Contains(text, "harbour cranes") {
		t.Errorf("context still holds the old text:\n%s", text)
	}
	if strings.Contains(text, "lighthouse") || strings.Contains(text, "keeper") {
		t.Errorf("stale chunks survived the change:\n%s", text)
	}
}

func TestE2E_DeleteRemovesOnlyThatDocument(t *testing.T) {
	env := newE2EEnv(t)
	ctx := context.Background()
	corpus := BuildCorpus(4)
	for _, d := range corpus.Documents {
		doc, path := env.addToLibrary(t, d)
		if err := env.manager.EnsureIndexed(ctx, doc, path); err != nil {
			t.Fatal(err)
		}
	}

	gone := corpus.Documents[1]
	if err := env.manager.DeleteDocument(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}
	if _, found, err := env.queries.RetrieveContext(ctx, gone.ID, "anything", e2eAPIKey, 4); err != nil || found {
		t.Errorf("deleted document still answers: found=%v err=%v", found, err)
	}
	for _, d := range corpus.Documents {
		if d.ID == gone.ID {
			continue
		}
		if _, found, err := env.queries.RetrieveContext(ctx, d.ID, "anything", e2eAPIKey, 4); err != nil || !found {
			t.Errorf("%s lost its context: found=%v err=%v", d.Signature, found, err)
		}
	}
}
