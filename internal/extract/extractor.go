// Package extract converts raw documents into structured, provenance-tagged text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kensaku-io/kensaku/internal/models"
)

// ErrUnsupported is returned for formats the extractor cannot handle.
var ErrUnsupported = errors.New("unsupported document format")

// Extractor converts document bytes into a StructuredDocument. Items keep
// their page provenance where the format has pages (PDF, PPTX); formats
// without a page concept emit items with an empty provenance set.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract converts content into a StructuredDocument. name is the document
// identifier (filename or URL); its extension selects the format.
func (e *Extractor) Extract(name string, content []byte) (*models.StructuredDocument, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimRight(name, "/")))
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}

	var (
		items []models.ContentItem
		err   error
	)
	switch ext {
	case ".pdf":
		items, err = extractPDF(content)
	case ".docx", ".odt", ".rtf":
		items, err = extractDOCX(content)
	case ".xlsx":
		items, err = extractExcel(content)
	case ".pptx":
		items, err = extractPPTX(content)
	case ".html", ".htm":
		items, err = extractHTML(content)
	case ".txt", ".md", ".rst", "":
		items, err = extractPlain(content)
	case ".png", ".jpg", ".jpeg", ".gif", ".zip", ".gz", ".tar", ".mp3", ".mp4", ".doc", ".xls", ".ppt":
		return nil, fmt.Errorf("extract %s: %w", name, ErrUnsupported)
	default:
		// Unknown extensions are common for crawled URLs; assume text.
		items, err = extractPlain(content)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	return &models.StructuredDocument{Name: name, Items: items}, nil
}
