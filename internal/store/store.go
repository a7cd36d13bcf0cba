// Package store provides the vector-search store: idempotent bulk upsert and
// nearest-neighbor retrieval of index records.
package store

import (
	"context"

	"github.com/kensaku-io/kensaku/internal/models"
)

// Store persists index records and answers similarity queries. BulkUpsert
// isolates per-record failures: one bad record never aborts the batch, the
// report carries exact success/failure counts, and every record that failed
// to index appears in FailedItems. Records with an ID are overwritten on
// re-index (idempotent upsert); records without one get a store-assigned
// identity.
type Store interface {
	BulkUpsert(ctx context.Context, records []*models.IndexRecord) (*models.BulkReport, error)
	Search(ctx context.Context, vector []float32, k int) ([]*models.QueryResult, error)
}
