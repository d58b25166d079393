// Package library locates document files in the reading library and watches them for
// changes. Each document lives at <root>/<uuid>/document.<ext>.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/verso-reads/verso-rag/internal/models"
)

// DocumentBaseName is the file name (without extension) of every library document.
const DocumentBaseName = "document"

// Entry is a document file found in the library.
type Entry struct {
	ID   uuid.UUID
	Path string
}

// Library resolves document paths under a root directory.
type Library struct {
	root string
}

// New returns a library rooted at root.
func New(root string) *Library {
	return &Library{root: filepath.Clean(root)}
}

// Root returns the library root.
func (l *Library) Root() string {
	return l.root
}

// Path returns the absolute path of doc's file.
func (l *Library) Path(doc *models.Document) (string, error) {
	if doc.RelativePath == "" {
		return "", fmt.Errorf("document %s has no relative path", doc.ID)
	}
	rel := filepath.Clean(filepath.FromSlash(doc.RelativePath))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("relative path %q escapes the library", doc.RelativePath)
	}
	return filepath.Join(l.root, rel), nil
}

// RelativePath returns the library-relative path for a document of id with extension ext.
func RelativePath(id uuid.UUID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "pdf"
	}
	return id.String() + "/" + DocumentBaseName + "." + ext
}

// ParsePath extracts the document ID from a path of the form <root>/<uuid>/document.<ext>.
func (l *Library) ParsePath(path string) (uuid.UUID, bool) {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil {
		return uuid.Nil, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return uuid.Nil, false
	}
	name := parts[1]
	if strings.TrimSuffix(name, filepath.Ext(name)) != DocumentBaseName {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// parseDir extracts the document ID from a document directory <root>/<uuid>.
func (l *Library) parseDir(path string) (uuid.UUID, bool) {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil || strings.ContainsRune(rel, filepath.Separator) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rel)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Documents lists the document files currently in the library, ordered by path.
// A missing root is an empty library.
func (l *Library) Documents() ([]Entry, error) {
	dirs, err := os.ReadDir(l.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id, err := uuid.Parse(d.Name())
		if err != nil {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(l.root, d.Name(), DocumentBaseName+".*"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			entries = append(entries, Entry{ID: id, Path: m})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
