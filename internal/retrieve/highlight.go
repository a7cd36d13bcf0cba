package retrieve

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/models"
)

// wordSpan is one word of rendered page text with its bounding box.
type wordSpan struct {
	text string
	box  models.Rect
}

// Highlighter locates retrieved excerpts on rendered PDF pages. Sources are
// looked up by filename under a configured directory.
type Highlighter struct {
	pdfDir string
	logger *zap.Logger
}

// NewHighlighter creates a highlighter reading PDFs from pdfDir.
func NewHighlighter(pdfDir string, logger *zap.Logger) *Highlighter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Highlighter{pdfDir: pdfDir, logger: logger}
}

// Highlight searches the cited pages of the named PDF for each excerpt and
// returns one region per match. A missing file or an excerpt that does not
// appear on a page yields no regions; neither is an error for the query.
func (h *Highlighter) Highlight(filename string, pages []int, excerpts []string) []models.HighlightRegion {
	path := filepath.Join(h.pdfDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		h.logger.Debug("no rendered pdf for source", zap.String("filename", filename))
		return nil
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		h.logger.Warn("failed to open pdf", zap.String("path", path), zap.Error(err))
		return nil
	}
	defer f.Close()

	var regions []models.HighlightRegion
	for _, pageNum := range pages {
		if pageNum < 1 || pageNum > r.NumPage() {
			continue
		}
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		words := wordsFromTexts(page.Content().Text)
		for _, excerpt := range excerpts {
			for _, box := range findMatches(words, excerpt) {
				regions = append(regions, models.HighlightRegion{
					Page:   pageNum,
					X:      box.X,
					Y:      box.Y,
					Width:  box.Width,
					Height: box.Height,
				})
			}
		}
	}
	return regions
}

// Fragments on the same text line are closer than this in Y.
const lineTolerance = 2.0

// wordsFromTexts assembles positioned words from raw text fragments. A
// fragment may hold several words or a partial one; words are split on
// spaces, with sub-fragment boxes estimated proportionally by rune count.
// A line change always terminates the current word.
func wordsFromTexts(texts []pdf.Text) []wordSpan {
	var words []wordSpan
	var cur strings.Builder
	var box models.Rect
	curY := math.NaN()

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, wordSpan{text: cur.String(), box: box})
			cur.Reset()
		}
	}

	for _, t := range texts {
		if t.S == "" {
			continue
		}
		if !math.IsNaN(curY) && math.Abs(t.Y-curY) > lineTolerance {
			flush()
		}
		curY = t.Y

		runes := []rune(t.S)
		perRune := t.W / float64(len(runes))
		for i, r := range runes {
			if r == ' ' || r == '\t' || r == '\n' {
				flush()
				continue
			}
			x := t.X + perRune*float64(i)
			if cur.Len() == 0 {
				box = models.Rect{X: x, Y: t.Y, Width: perRune, Height: t.FontSize}
			} else {
				box.Width = x + perRune - box.X
				if t.FontSize > box.Height {
					box.Height = t.FontSize
				}
			}
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// findMatches returns a bounding box for each occurrence of excerpt in the
// word sequence. Matching is case-insensitive and ignores punctuation stuck
// to word edges, which rendered text is full of.
func findMatches(words []wordSpan, excerpt string) []models.Rect {
	target := normalizeWords(strings.Fields(excerpt))
	if len(target) == 0 {
		return nil
	}
	normalized := make([]string, len(words))
	for i, w := range words {
		normalized[i] = normalizeWord(w.text)
	}

	var boxes []models.Rect
	for start := 0; start+len(target) <= len(words); start++ {
		matched := true
		for j, want := range target {
			if normalized[start+j] != want {
				matched = false
				break
			}
		}
		if matched {
			boxes = append(boxes, boundingBox(words[start:start+len(target)]))
		}
	}
	return boxes
}

func normalizeWords(words []string) []string {
	out := words[:0]
	for _, w := range words {
		if n := normalizeWord(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,;:!?()[]{}\"'“”‘’"))
}

// boundingBox returns the smallest rectangle enclosing every span.
func boundingBox(spans []wordSpan) models.Rect {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range spans {
		minX = math.Min(minX, s.box.X)
		minY = math.Min(minY, s.box.Y)
		maxX = math.Max(maxX, s.box.X+s.box.Width)
		maxY = math.Max(maxY, s.box.Y+s.box.Height)
	}
	return models.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// PageList formats page numbers for a citation line, e.g. "p. 1, 3, 4".
func PageList(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return "p. " + strings.Join(parts, ", ")
}
