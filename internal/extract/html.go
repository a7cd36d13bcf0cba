package extract

import (
	"regexp"
	"strings"

	"github.com/kensaku-io/kensaku/internal/models"
)

// Crawled web pages arrive as HTML. The page is reduced to block-level text
// with <h1>..<h6> contents carried as enclosing headings, in the same
// regex-over-markup style as the OOXML extractors. Web pages have no page
// concept, so provenance is empty.

var (
	htmlScript  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlStyle   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlTitle   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlHeading = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	htmlBlock   = regexp.MustCompile(`(?i)</(p|div|li|tr|article|section|blockquote|h[1-6])>|<br\s*/?>`)
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)
)

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

// extractHTML emits one content item per block of text.
func extractHTML(content []byte) ([]models.ContentItem, error) {
	page := string(content)
	page = htmlScript.ReplaceAllString(page, " ")
	page = htmlStyle.ReplaceAllString(page, " ")
	page = htmlComment.ReplaceAllString(page, " ")

	// The document title becomes the heading for text before the first <h*>.
	title := ""
	if m := htmlTitle.FindStringSubmatch(page); m != nil {
		title = strings.Join(strings.Fields(htmlEntities.Replace(m[1])), " ")
	}
	page = htmlTitle.ReplaceAllString(page, " ")

	// Mark heading contents before tags are stripped so they survive as
	// their own blocks and can be told apart from body text.
	page = htmlHeading.ReplaceAllString(page, "\n\x00$2\n")
	page = htmlBlock.ReplaceAllString(page, "\n")
	page = htmlTag.ReplaceAllString(page, " ")
	page = htmlEntities.Replace(page)

	var items []models.ContentItem
	heading := title
	for _, block := range strings.Split(page, "\n") {
		isHeading := strings.HasPrefix(block, "\x00")
		text := strings.Join(strings.Fields(strings.TrimPrefix(block, "\x00")), " ")
		if text == "" {
			continue
		}
		if isHeading {
			heading = text
			continue
		}
		items = append(items, models.ContentItem{Text: text, Heading: heading})
	}
	return items, nil
}
