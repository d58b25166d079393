package models

// PageText is the normalized plain text of one page (PageIndex is 1-based).
type PageText struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
}

// Chunk is a bounded slice of document text with page provenance.
// PageStart and PageEnd are nil only when the source had no page text.
type Chunk struct {
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	PageStart  *int   `json:"page_start,omitempty"`
	PageEnd    *int   `json:"page_end,omitempty"`
}

// Record pairs the chunk with its embedding for persistence.
func (c Chunk) Record(embedding []float32) EmbeddingRecord {
	return EmbeddingRecord{
		ChunkIndex: c.ChunkIndex,
		PageStart:  c.PageStart,
		PageEnd:    c.PageEnd,
		Embedding:  embedding,
		Text:       c.Text,
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
