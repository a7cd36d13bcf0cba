// Package retrieve answers similarity queries: vector search, citation
// context assembly, and excerpt-to-page highlight mapping.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/store"
)

// Retriever embeds a query, searches the store, and maps results back to
// their source locations.
type Retriever struct {
	embedder    embedding.Embedder
	store       store.Store
	highlighter *Highlighter
	cfg         config.RetrieveConfig
	logger      *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHighlighter enables highlight mapping for page-oriented sources.
func WithHighlighter(h *Highlighter) Option {
	return func(r *Retriever) { r.highlighter = h }
}

// New creates a Retriever.
func New(emb embedding.Embedder, st store.Store, cfg config.RetrieveConfig, opts ...Option) (*Retriever, error) {
	if emb == nil || st == nil {
		return nil, fmt.Errorf("retrieve: embedder and store are required")
	}
	r := &Retriever{
		embedder: emb,
		store:    st,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Search embeds the query and returns the top results in ranking order.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]*models.QueryResult, error) {
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	if r.cfg.MaxLimit > 0 && limit > r.cfg.MaxLimit {
		limit = r.cfg.MaxLimit
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query cannot be empty")
	}
	results, err := r.store.Search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}
	r.logger.Info("query executed", zap.Int("limit", limit), zap.Int("results", len(results)))
	return results, nil
}

// BuildContext assembles result texts with citation lines into one string,
// preserving ranking order. Each result contributes its text followed by a
// "Source:" line and, when the chunk has a title, a "Title:" line.
func (r *Retriever) BuildContext(results []*models.QueryResult) string {
	blocks := make([]string, 0, len(results))
	for _, res := range results {
		var b strings.Builder
		b.WriteString(res.Text)
		b.WriteString("\n")
		b.WriteString(citation(res.Metadata))
		if res.Metadata.Title != nil && *res.Metadata.Title != "" {
			b.WriteString("\nTitle: ")
			b.WriteString(*res.Metadata.Title)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func citation(meta models.ChunkMetadata) string {
	source := "unknown"
	if meta.Filename != nil && *meta.Filename != "" {
		source = *meta.Filename
	}
	if pages := PageList(meta.PageNumbers); pages != "" {
		return fmt.Sprintf("Source: %s - %s", source, pages)
	}
	return "Source: " + source
}

// Highlights maps each page-oriented result back to regions on its rendered
// pages. Results without a filename or page numbers contribute nothing, as
// do excerpts that cannot be located.
func (r *Retriever) Highlights(results []*models.QueryResult) []models.HighlightRegion {
	if r.highlighter == nil {
		return nil
	}
	var regions []models.HighlightRegion
	for _, res := range results {
		if res.Metadata.Filename == nil || len(res.Metadata.PageNumbers) == 0 {
			continue
		}
		excerpts := Excerpts(res.Text, r.cfg.ExcerptWords, r.cfg.ExcerptOverlap)
		regions = append(regions, r.highlighter.Highlight(*res.Metadata.Filename, res.Metadata.PageNumbers, excerpts)...)
	}
	return regions
}
