package chunker

import (
	"fmt"
	"iter"
	"sort"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/pkg/utils"
)

// Chunker groups contiguous content items into chunks under a token budget.
// Grouping breaks at heading changes; adjacent undersized groups are then
// merged ("merge peers") so sections with little text do not produce
// pathologically small chunks.
type Chunker struct {
	tok       Tokenizer
	maxTokens int
	logger    *zap.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLogger sets a logger for warnings (oversized chunks).
func WithLogger(l *zap.Logger) Option {
	return func(c *Chunker) { c.logger = l }
}

// New creates a chunker. Returns an error if the tokenizer is missing or the
// token budget is not positive.
func New(tok Tokenizer, maxTokens int, opts ...Option) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("chunker: tokenizer is required")
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("chunker: max tokens must be positive, got %d", maxTokens)
	}
	c := &Chunker{tok: tok, maxTokens: maxTokens}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// group is a run of contiguous items accumulated under the token budget.
type group struct {
	items  []models.ContentItem
	tokens int
}

// Chunks returns a lazy, restartable sequence of chunks covering every
// content item of doc exactly once. A single item over the budget is emitted
// as its own oversized chunk rather than truncated; a warning is logged so
// it can be reviewed.
func (c *Chunker) Chunks(doc *models.StructuredDocument) iter.Seq[*models.Chunk] {
	return func(yield func(*models.Chunk) bool) {
		var buffered *group

		emit := func(g *group) bool {
			return yield(c.build(doc.Name, g))
		}
		// flush hands a completed group to the merge-peers stage: the
		// buffered group absorbs its neighbor while the union stays
		// under budget, otherwise it is emitted and replaced.
		flush := func(g *group) bool {
			if buffered == nil {
				buffered = g
				return true
			}
			if buffered.tokens+g.tokens <= c.maxTokens {
				buffered.items = append(buffered.items, g.items...)
				buffered.tokens += g.tokens
				return true
			}
			done := emit(buffered)
			buffered = g
			return done
		}

		var cur *group
		for _, item := range doc.Items {
			t := c.tok.Count(item.Text)
			if t > c.maxTokens {
				// Emitted as-is rather than split or truncated.
				if c.logger != nil {
					c.logger.Warn("content item exceeds token budget, emitting oversized chunk",
						zap.String("document", doc.Name),
						zap.Int("tokens", t),
						zap.Int("max_tokens", c.maxTokens),
						zap.String("text", utils.Truncate(item.Text, 80)),
					)
				}
				if cur != nil {
					if !flush(cur) {
						return
					}
					cur = nil
				}
				if !flush(&group{items: []models.ContentItem{item}, tokens: t}) {
					return
				}
				continue
			}
			startNew := cur == nil ||
				cur.tokens+t > c.maxTokens ||
				(item.Heading != "" && item.Heading != cur.items[len(cur.items)-1].Heading)
			if startNew {
				if cur != nil {
					if !flush(cur) {
						return
					}
				}
				cur = &group{}
			}
			cur.items = append(cur.items, item)
			cur.tokens += t
		}
		if cur != nil {
			if !flush(cur) {
				return
			}
		}
		if buffered != nil {
			emit(buffered)
		}
	}
}

// ChunkAll collects the chunk sequence into a slice.
func (c *Chunker) ChunkAll(doc *models.StructuredDocument) []*models.Chunk {
	var chunks []*models.Chunk
	for ch := range c.Chunks(doc) {
		chunks = append(chunks, ch)
	}
	return chunks
}

// build assembles a chunk from a group: concatenated text, sorted
// de-duplicated page union, first heading as title.
func (c *Chunker) build(name string, g *group) *models.Chunk {
	text := ""
	pageSet := make(map[int]bool)
	var title *string
	for _, item := range g.items {
		if text != "" {
			text += "\n\n"
		}
		text += item.Text
		for _, p := range item.Pages {
			pageSet[p.Number] = true
		}
		if title == nil && item.Heading != "" {
			h := item.Heading
			title = &h
		}
	}
	var pages []int
	for p := range pageSet {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	filename := name
	return &models.Chunk{
		Text: text,
		Metadata: models.ChunkMetadata{
			Filename:    &filename,
			PageNumbers: pages,
			Title:       title,
		},
	}
}
