package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/verso-reads/verso-rag/internal/models"
)

func TestLibrary_Path(t *testing.T) {
	root := t.TempDir()
	lib := New(root)
	id := uuid.New()

	doc := &models.Document{ID: id, RelativePath: RelativePath(id, ".epub")}
	got, err := lib.Path(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, id.String(), "document.epub")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	for _, rel := range []string{"", "../outside.pdf", "a/../../b.pdf"} {
		if _, err := lib.Path(&models.Document{ID: id, RelativePath: rel}); err == nil {
			t.Errorf("expected error for relative path %q", rel)
		}
	}
}

func TestRelativePath(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	if got := RelativePath(id, "txt"); got != "7d444840-9dc0-11d1-b245-5ffdce74fad2/document.txt" {
		t.Errorf("RelativePath() = %q", got)
	}
	if got := RelativePath(id, ""); got != "7d444840-9dc0-11d1-b245-5ffdce74fad2/document.pdf" {
		t.Errorf("RelativePath() without extension = %q", got)
	}
}

func TestLibrary_ParsePath(t *testing.T) {
	root := "/lib"
	lib := New(root)
	id := uuid.New()
	tests := []struct {
		path string
		ok   bool
	}{
		{filepath.Join(root, id.String(), "document.pdf"), true},
		{filepath.Join(root, id.String(), "document"), true},
		{filepath.Join(root, id.String(), "notes.pdf"), false},
		{filepath.Join(root, "not-a-uuid", "document.pdf"), false},
		{filepath.Join(root, id.String(), "sub", "document.pdf"), false},
		{filepath.Join(root, "document.pdf"), false},
		{filepath.Join("/elsewhere", id.String(), "document.pdf"), false},
	}
	for _, tt := range tests {
		got, ok := lib.ParsePath(tt.path)
		if ok != tt.ok {
			t.Errorf("ParsePath(%q) ok = %v, want %v", tt.path, ok, tt.ok)
		}
		if ok && got != id {
			t.Errorf("ParsePath(%q) = %v, want %v", tt.path, got, id)
		}
	}
}

func TestLibrary_Documents(t *testing.T) {
	root := t.TempDir()
	lib := New(root)
	a, b := uuid.New(), uuid.New()
	for _, p := range []string{
		filepath.Join(root, a.String(), "document.pdf"),
		filepath.Join(root, b.String(), "document.txt"),
		filepath.Join(root, "junk", "document.txt"),
		filepath.Join(root, b.String(), "cover.png"),
	} {
		if err := mkdirAll(filepath.Dir(p)); err != nil {
			t.Fatal(err)
		}
		if err := writeFile(p, "x"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := lib.Documents()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 documents, got %+v", entries)
	}
	seen := map[uuid.UUID]bool{}
	for _, e := range entries {
		seen[e.ID] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("unexpected entries %+v", entries)
	}

	empty, err := New(filepath.Join(root, "missing")).Documents()
	if err != nil || len(empty) != 0 {
		t.Errorf("missing root: entries=%v err=%v", empty, err)
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
