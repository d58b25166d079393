package query

import (
	"fmt"
	"strings"

	"github.com/verso-reads/verso-rag/internal/models"
)

// SectionLabel names a retrieved chunk for the prompt: "Page 3", "Page 3-4", or
// "Section n" (1-based position) when the chunk has no page range.
func SectionLabel(r models.ChunkResult, position int) string {
	switch {
	case r.PageStart != nil && r.PageEnd != nil && *r.PageStart != *r.PageEnd:
		return fmt.Sprintf("Page %d-%d", *r.PageStart, *r.PageEnd)
	case r.PageStart != nil:
		return fmt.Sprintf("Page %d", *r.PageStart)
	default:
		return fmt.Sprintf("Section %d", position+1)
	}
}

// FormatContext renders results in retrieval order as "<label>:\n<text>" blocks separated
// by blank lines.
func FormatContext(results []models.ChunkResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = SectionLabel(r, i) + ":\n" + r.Text
	}
	return strings.Join(blocks, "\n\n")
}
