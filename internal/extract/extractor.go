// Package extract provides page-oriented text extraction from library documents.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/pkg/utils"
)

// ErrInvalidDocument is returned when a file cannot be opened as its declared format.
var ErrInvalidDocument = errors.New("invalid document")

// Extractor extracts normalized page texts from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedExtensions lists the extensions with a dedicated extractor. Anything else is read
// as plain text.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".md", ".rst", ".docx", ".xlsx", ".pptx", ".odp", ".ods", ".rtf", ".odt"}
}

// ExtractPages reads the file at path and returns its non-empty pages in order.
// Page text is trimmed with whitespace runs collapsed to single spaces; PageIndex is the
// 1-based physical page (or sheet, or slide) number, so skipped empty pages leave gaps.
func (e *Extractor) ExtractPages(path string) ([]models.PageText, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractPagesBytes(content, ext)
}

// ExtractPagesBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractPagesBytes(content []byte, ext string) ([]models.PageText, error) {
	var (
		raw []string
		err error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		raw, err = extractPDF(content)
	case ".docx":
		raw, err = extractDOCX(content)
	case ".xlsx":
		raw, err = extractExcel(content)
	case ".pptx":
		raw, err = extractPPTX(content)
	case ".odp":
		raw, err = extractODF(content, odpPageTag)
	case ".ods":
		raw, err = extractODF(content, odsPageTag)
	case ".rtf", ".odt":
		raw, err = extractWithCat(content)
	default:
		raw, err = extractPlain(content)
	}
	if err != nil {
		return nil, err
	}
	return normalizePages(raw), nil
}

// normalizePages numbers raw pages from 1 and drops the ones without text.
func normalizePages(raw []string) []models.PageText {
	pages := make([]models.PageText, 0, len(raw))
	for i, text := range raw {
		text = utils.CollapseWhitespace(text)
		if text == "" {
			continue
		}
		pages = append(pages, models.PageText{PageIndex: i + 1, Text: text})
	}
	return pages
}

// Text joins pages with blank lines; used where a single string is wanted.
func Text(pages []models.PageText) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n\n")
}
