package indexer

import (
	"strings"

	"github.com/verso-reads/verso-rag/internal/models"
)

// Default chunk window, in characters.
const (
	DefaultMaxCharacters = 1200
	DefaultOverlap       = 200
)

// Chunker splits page texts into overlapping character windows that remember
// which pages they came from.
type Chunker struct {
	maxCharacters int
	overlap       int
}

// NewChunker creates a chunker with the given window size and overlap (in characters).
func NewChunker(maxCharacters, overlap int) *Chunker {
	maxCharacters, overlap = normalizeWindow(maxCharacters, overlap)
	return &Chunker{
		maxCharacters: maxCharacters,
		overlap:       overlap,
	}
}

// Chunk splits pages using the chunker's window.
func (c *Chunker) Chunk(pages []models.PageText) []models.Chunk {
	return ChunkPages(pages, c.maxCharacters, c.overlap)
}

// ChunkPages concatenates page texts with single spaces and cuts the running buffer every
// maxCharacters characters. The last overlap characters of each cut seed the next buffer,
// and the page range of the next chunk starts at the page that ended the previous one.
// Chunks are trimmed; chunks that are empty after trimming are dropped.
func ChunkPages(pages []models.PageText, maxCharacters, overlap int) []models.Chunk {
	if len(pages) == 0 {
		return nil
	}
	maxCharacters, overlap = normalizeWindow(maxCharacters, overlap)

	var (
		chunks    []models.Chunk
		buffer    []rune
		pageStart *int
		pageEnd   *int
	)
	flush := func(text []rune, start, end *int) {
		trimmed := strings.TrimSpace(string(text))
		if trimmed == "" {
			return
		}
		chunks = append(chunks, models.Chunk{
			Text:       trimmed,
			ChunkIndex: len(chunks),
			PageStart:  start,
			PageEnd:    end,
		})
	}

	for _, page := range pages {
		if pageStart == nil {
			pageStart = models.IntPtr(page.PageIndex)
		}
		pageEnd = models.IntPtr(page.PageIndex)

		if len(buffer) > 0 {
			buffer = append(buffer, ' ')
		}
		buffer = append(buffer, []rune(page.Text)...)

		// Each pass shrinks the buffer by maxCharacters-overlap > 0.
		for len(buffer) >= maxCharacters {
			head := buffer[:maxCharacters]
			flush(head, pageStart, pageEnd)

			next := make([]rune, 0, overlap+len(buffer)-maxCharacters)
			next = append(next, head[len(head)-overlap:]...)
			next = append(next, buffer[maxCharacters:]...)
			buffer = next
			pageStart = pageEnd
		}
	}

	if len(buffer) > 0 {
		flush(buffer, pageStart, pageEnd)
	}
	return chunks
}

// normalizeWindow clamps degenerate parameters so chunking always terminates.
func normalizeWindow(maxCharacters, overlap int) (int, int) {
	if maxCharacters <= 0 {
		maxCharacters = DefaultMaxCharacters
	}
	if overlap < 0 || overlap >= maxCharacters {
		overlap = 0
	}
	return maxCharacters, overlap
}
