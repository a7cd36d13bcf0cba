package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kensaku-io/kensaku/internal/models"
)

// pptxSlidePathPrefix is the path prefix for slide XML files inside a .pptx zip.
const pptxSlidePathPrefix = "ppt/slides/slide"

// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t> (and any other attributes).
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractPPTX emits one content item per slide, tagged with the slide number
// as page provenance. PPTX is a ZIP containing ppt/slides/slideN.xml
// (Office Open XML); we take all <a:t>...</a:t> text nodes per slide.
func extractPPTX(content []byte) ([]models.ContentItem, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePathPrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(f.Name, pptxSlidePathPrefix), ".xml")
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: open %s: %w", f.Name, err)
		}
		var slideBuf bytes.Buffer
		if _, err := slideBuf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("extract PPTX: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		parts := atTag.FindAllStringSubmatch(slideBuf.String(), -1)
		var buf strings.Builder
		for _, p := range parts {
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strings.TrimSpace(p[1]))
		}
		text := strings.TrimSpace(buf.String())
		if text == "" {
			continue
		}
		slides = append(slides, slide{num: num, text: text})
	}
	// Zip entries are not ordered; slides must come out in slide order.
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	items := make([]models.ContentItem, 0, len(slides))
	for _, s := range slides {
		items = append(items, models.ContentItem{
			Text:  s.text,
			Pages: []models.PageRef{{Number: s.num}},
		})
	}
	return items, nil
}
