// Package cli formats command output for verso-rag.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verso-reads/verso-rag/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// DocumentSummary is one indexed document in a status report.
type DocumentSummary struct {
	DocumentID   uuid.UUID `json:"document_id"`
	Title        string    `json:"title"`
	Chunks       int64     `json:"chunks"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsIndexing   bool      `json:"is_indexing,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// StatusReport describes the index as a whole.
type StatusReport struct {
	Documents      int64             `json:"documents"`
	Chunks         int64             `json:"chunks"`
	DiskUsageBytes int64             `json:"disk_usage_bytes"`
	DatabasePath   string            `json:"database_path"`
	LibraryRoot    string            `json:"library_root"`
	EmbeddingModel string            `json:"embedding_model"`
	HasAPIKey      bool              `json:"has_api_key"`
	Indexed        []DocumentSummary `json:"indexed,omitempty"`
}

// ContextResult is the outcome of a context lookup.
type ContextResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Query      string    `json:"query"`
	Context    string    `json:"context"`
	Found      bool      `json:"found"`
}

// IndexResult is the outcome of indexing one file.
type IndexResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Path       string    `json:"path"`
	Chunks     int64     `json:"chunks"`
	Message    string    `json:"message,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteStatus writes report to w in the given format.
func WriteStatus(w io.Writer, report *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Documents: %d\n", report.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", report.Chunks)
	fmt.Fprintf(w, "Disk:      %s\n", FormatBytes(report.DiskUsageBytes))
	fmt.Fprintf(w, "Database:  %s\n", report.DatabasePath)
	fmt.Fprintf(w, "Library:   %s\n", report.LibraryRoot)
	fmt.Fprintf(w, "Model:     %s\n", report.EmbeddingModel)
	key := "missing"
	if report.HasAPIKey {
		key = "configured"
	}
	fmt.Fprintf(w, "API key:   %s\n", key)
	if len(report.Indexed) == 0 {
		return nil
	}
	docs := append([]DocumentSummary(nil), report.Indexed...)
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	fmt.Fprintln(w)
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s %5d chunks", d.DocumentID, utils.Truncate(d.Title, 37), d.Chunks)
		switch {
		case d.IsIndexing:
			fmt.Fprint(w, "  (indexing)")
		case d.ErrorMessage != "":
			fmt.Fprintf(w, "  (%s)", d.ErrorMessage)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteContext writes a context lookup result.
func WriteContext(w io.Writer, res *ContextResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if !res.Found {
		fmt.Fprintln(w, "No relevant context found.")
		return nil
	}
	fmt.Fprintln(w, res.Context)
	return nil
}

// WriteIndexResult writes the outcome of an index command.
func WriteIndexResult(w io.Writer, res *IndexResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %s as %s (%d chunks)\n", res.Path, res.DocumentID, res.Chunks)
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
