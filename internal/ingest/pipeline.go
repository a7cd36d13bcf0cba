// Package ingest wires extraction, chunking, embedding and indexing into the
// document ingestion pipeline.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/chunker"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/extract"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/sourceid"
	"github.com/kensaku-io/kensaku/internal/spool"
	"github.com/kensaku-io/kensaku/internal/store"
)

// Pipeline runs documents from raw bytes to indexed chunks. Ingestion spools
// chunks first; Flush drains the spool through the embedder into the store,
// so an embedder or store outage never loses extracted work.
type Pipeline struct {
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	spool     *spool.Spool
	embedder  embedding.Embedder
	store     store.Store
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates an ingestion pipeline.
func New(ex *extract.Extractor, ch *chunker.Chunker, sp *spool.Spool, emb embedding.Embedder, st store.Store, opts ...Option) (*Pipeline, error) {
	if ex == nil || ch == nil || sp == nil || emb == nil || st == nil {
		return nil, fmt.Errorf("ingest: all pipeline stages are required")
	}
	p := &Pipeline{
		extractor: ex,
		chunker:   ch,
		spool:     sp,
		embedder:  emb,
		store:     st,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// IngestFile reads, extracts, chunks and spools a file. The file path is the
// source identity, so re-ingesting the same path overwrites its chunks.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return p.IngestBytes(ctx, path, filepath.Base(path), content)
}

// IngestBytes extracts, chunks and spools a document. source is the stable
// identity (URL or path) that chunk IDs derive from; name is the display name
// carried in chunk metadata and used to pick the extractor.
func (p *Pipeline) IngestBytes(ctx context.Context, source, name string, content []byte) (int, error) {
	doc, err := p.extractor.Extract(name, content)
	if err != nil {
		return 0, err
	}
	chunks := p.chunker.ChunkAll(doc)
	for i, chunk := range chunks {
		chunk.ID = sourceid.ChunkID(source, i)
	}
	if len(chunks) == 0 {
		p.logger.Warn("document produced no chunks", zap.String("source", source))
		return 0, nil
	}
	if err := p.spool.Put(ctx, source, chunks); err != nil {
		return 0, fmt.Errorf("spool %s: %w", source, err)
	}
	p.logger.Info("spooled document",
		zap.String("source", source), zap.String("name", name), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Flush drains pending chunks from the spool: embed, bulk-index, then mark
// each chunk indexed or failed. A chunk failing to embed is counted and
// marked failed without stopping its siblings. Returns how many chunks were
// indexed and how many failed.
func (p *Pipeline) Flush(ctx context.Context) (indexed, failed int, err error) {
	pending, err := p.spool.Pending(ctx, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("read spool: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	records := make([]*models.IndexRecord, 0, len(pending))
	var embedFailed []string
	for _, chunk := range pending {
		vector, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			failed++
			embedFailed = append(embedFailed, chunk.ID)
			p.logger.Error("failed to embed chunk", zap.String("id", chunk.ID), zap.Error(err))
			continue
		}
		if len(vector) == 0 {
			// Empty text embeds to nothing and cannot be indexed.
			failed++
			embedFailed = append(embedFailed, chunk.ID)
			p.logger.Warn("chunk produced no embedding", zap.String("id", chunk.ID))
			continue
		}
		records = append(records, &models.IndexRecord{
			ID:       chunk.ID,
			Text:     chunk.Text,
			Vector:   vector,
			Metadata: chunk.Metadata,
		})
	}
	if err := p.spool.MarkFailed(ctx, embedFailed, "embedding failed"); err != nil {
		return indexed, failed, err
	}
	if len(records) == 0 {
		return 0, failed, nil
	}

	report, err := p.store.BulkUpsert(ctx, records)
	if err != nil {
		return 0, failed, fmt.Errorf("bulk index: %w", err)
	}

	failedIDs := make(map[string]bool, len(report.FailedItems))
	for _, item := range report.FailedItems {
		failedIDs[item.ID] = true
	}
	var ok, bad []string
	for _, rec := range records {
		if failedIDs[rec.ID] {
			bad = append(bad, rec.ID)
		} else {
			ok = append(ok, rec.ID)
		}
	}
	if err := p.spool.MarkIndexed(ctx, ok); err != nil {
		return indexed, failed, err
	}
	if err := p.spool.MarkFailed(ctx, bad, "indexing failed"); err != nil {
		return indexed, failed, err
	}
	indexed = report.Succeeded
	failed += report.Failed

	p.logger.Info("flushed spool", zap.Int("indexed", indexed), zap.Int("failed", failed))
	return indexed, failed, nil
}
