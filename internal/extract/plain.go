package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/kensaku-io/kensaku/internal/models"
)

// extractPlain emits one content item per paragraph (blank-line separated).
// Markdown-style "# ..." lines become the enclosing heading for the items
// that follow. Invalid UTF-8 sequences are replaced with the replacement
// character.
func extractPlain(content []byte) ([]models.ContentItem, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")

	var items []models.ContentItem
	heading := ""
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if strings.HasPrefix(para, "#") && !strings.Contains(para, "\n") {
			heading = strings.TrimSpace(strings.TrimLeft(para, "#"))
			continue
		}
		items = append(items, models.ContentItem{Text: para, Heading: heading})
	}
	return items, nil
}
