package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kensaku-io/kensaku/internal/models"
)

// extractPDF emits one content item per page, tagged with its page number.
func extractPDF(content []byte) ([]models.ContentItem, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var items []models.ContentItem
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		items = append(items, models.ContentItem{
			Text:  text,
			Pages: []models.PageRef{{Number: i}},
		})
	}
	return items, nil
}
