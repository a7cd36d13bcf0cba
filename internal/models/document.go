// Package models defines core data structures for documents, chunks, and index records.
package models

// Rect is an axis-aligned rectangle in page coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageRef records where a content item appears in its source: a page number
// and, when known, the bounding region on that page.
type PageRef struct {
	Number int   `json:"number"`
	Region *Rect `json:"region,omitempty"`
}

// ContentItem is one ordered unit of extracted text. Pages is empty for
// sources with no page concept (plain text, spreadsheets, web pages).
type ContentItem struct {
	Text    string    `json:"text"`
	Heading string    `json:"heading,omitempty"`
	Pages   []PageRef `json:"pages,omitempty"`
}

// StructuredDocument is the extractor output: the document identifier
// (filename or URL) and its ordered content items.
type StructuredDocument struct {
	Name  string        `json:"name"`
	Items []ContentItem `json:"items"`
}

// ChunkMetadata links a chunk back to its source location. Pointer fields
// marshal as null when absent, matching the chunk object at rest.
type ChunkMetadata struct {
	Filename    *string `json:"filename"`
	PageNumbers []int   `json:"page_numbers"`
	Title       *string `json:"title"`
}

// Chunk is a token-bounded slice of one or more content items, prepared for
// embedding. ID is set when record identity is derived from the source
// location; empty means the store assigns one.
type Chunk struct {
	ID       string        `json:"id,omitempty"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// IndexRecord is the persisted unit in the vector store.
type IndexRecord struct {
	ID       string        `json:"id,omitempty"`
	Text     string        `json:"text"`
	Vector   []float32     `json:"vector"`
	Metadata ChunkMetadata `json:"metadata"`
}

// FailedItem describes one record that could not be indexed.
type FailedItem struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// BulkReport is the per-item outcome of a bulk upsert. A bulk run never
// aborts on a single bad record; failures are counted here instead.
type BulkReport struct {
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	FailedItems []FailedItem `json:"failed_items,omitempty"`
}
