package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kensaku-io/kensaku/internal/models"
)

// MemoryStore is an in-memory Store using brute-force inner product search.
// Suitable for tests and small datasets when no OpenSearch cluster is available.
type MemoryStore struct {
	dimensions int
	records    map[string]*models.IndexRecord
	mu         sync.RWMutex
}

// NewMemoryStore creates an in-memory store with the given vector dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		records:    make(map[string]*models.IndexRecord),
	}, nil
}

// BulkUpsert inserts or overwrites records keyed by ID. Records missing a
// vector or text are counted as failures without aborting the batch.
func (m *MemoryStore) BulkUpsert(_ context.Context, records []*models.IndexRecord) (*models.BulkReport, error) {
	report := &models.BulkReport{}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if reason := validateRecord(rec, m.dimensions); reason != "" {
			report.Failed++
			report.FailedItems = append(report.FailedItems, models.FailedItem{ID: rec.ID, Reason: reason})
			continue
		}
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		stored := *rec
		stored.ID = id
		m.records[id] = &stored
		report.Succeeded++
	}
	return report, nil
}

// validateRecord returns a failure reason, or empty when the record is indexable.
func validateRecord(rec *models.IndexRecord, dimensions int) string {
	if rec.Text == "" {
		return "missing text"
	}
	if len(rec.Vector) == 0 {
		return "missing vector"
	}
	if dimensions > 0 && len(rec.Vector) != dimensions {
		return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), dimensions)
	}
	return ""
}

// Search returns the top-k records by inner product (cosine similarity for
// normalized vectors), highest score first.
func (m *MemoryStore) Search(_ context.Context, query []float32, k int) ([]*models.QueryResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.records) == 0 {
		return nil, nil
	}
	type scored struct {
		rec   *models.IndexRecord
		score float64
	}
	scores := make([]scored, 0, len(m.records))
	for _, rec := range m.records {
		var dot float64
		for j := 0; j < m.dimensions; j++ {
			dot += float64(query[j] * rec.Vector[j])
		}
		scores = append(scores, scored{rec: rec, score: dot})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	results := make([]*models.QueryResult, k)
	for i := 0; i < k; i++ {
		results[i] = &models.QueryResult{
			Text:     scores[i].rec.Text,
			Score:    scores[i].score,
			Metadata: scores[i].rec.Metadata,
		}
	}
	return results, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
