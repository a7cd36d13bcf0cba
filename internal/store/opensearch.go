package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v2/signer/awsv2"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/models"
)

// Bulk runs against a remote cluster and may index many records; the store
// timeout is deliberately long (matches the indexing path of the service).
const storeTimeout = 120 * time.Second

// Document field names in the index.
const (
	fieldVector = "embedding_vector"
	fieldText   = "text_chunk"
	fieldMeta   = "metadata"
)

// OpenSearchStore implements Store against an OpenSearch cluster with a
// knn_vector index. Auth is HTTP basic when credentials are configured,
// otherwise requests are signed with the AWS default credential chain.
type OpenSearchStore struct {
	client     *opensearch.Client
	index      string
	dimensions int
	logger     *zap.Logger
}

// NewOpenSearchStore builds a client for the configured endpoint. Missing
// endpoint or index is a configuration error surfaced before any work.
func NewOpenSearchStore(cfg *config.StoreConfig, awsCfg aws.Config, dimensions int, logger *zap.Logger) (*OpenSearchStore, error) {
	if cfg.Endpoint == "" {
		return nil, config.ErrMissingStoreEndpoint
	}
	if cfg.Index == "" {
		return nil, config.ErrMissingStoreIndex
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	osCfg := opensearch.Config{Addresses: []string{endpoint}}
	if cfg.Username != "" && cfg.Password != "" {
		logger.Info("using basic authentication for opensearch")
		osCfg.Username = cfg.Username
		osCfg.Password = cfg.Password
	} else {
		logger.Info("using IAM request signing for opensearch", zap.String("region", awsCfg.Region))
		signer, err := requestsigner.NewSignerWithService(awsCfg, "es")
		if err != nil {
			return nil, fmt.Errorf("create request signer: %w", err)
		}
		osCfg.Signer = signer
	}
	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &OpenSearchStore{
		client:     client,
		index:      cfg.Index,
		dimensions: dimensions,
		logger:     logger,
	}, nil
}

// EnsureIndex creates the index with a knn_vector mapping if it does not exist.
func (s *OpenSearchStore) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	exists := opensearchapi.IndicesExistsRequest{Index: []string{s.index}}
	resp, err := exists.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}

	mapping := fmt.Sprintf(`{
		"settings": {"index": {"knn": true}},
		"mappings": {
			"properties": {
				%q: {"type": "knn_vector", "dimension": %d},
				%q: {"type": "text"},
				%q: {"type": "object", "enabled": true}
			}
		}
	}`, fieldVector, s.dimensions, fieldText, fieldMeta)

	create := opensearchapi.IndicesCreateRequest{Index: s.index, Body: strings.NewReader(mapping)}
	cresp, err := create.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer cresp.Body.Close()
	if cresp.IsError() {
		return fmt.Errorf("create index %s: %s", s.index, cresp.String())
	}
	s.logger.Info("created index", zap.String("index", s.index), zap.Int("dimensions", s.dimensions))
	return nil
}

// BulkUpsert indexes records with the bulk API. Records missing text or a
// vector are skipped and counted as failures; per-item errors from the bulk
// response are added to the report. The bulk call itself failing counts
// every submitted record as failed rather than returning a hard error, so
// the caller always gets counts and a failure item for each record that did
// not make it into the index.
func (s *OpenSearchStore) BulkUpsert(ctx context.Context, records []*models.IndexRecord) (*models.BulkReport, error) {
	body, submitted, report := bulkPayload(s.index, records, s.dimensions)
	for _, item := range report.FailedItems {
		s.logger.Warn("skipping record", zap.String("id", item.ID), zap.String("reason", item.Reason))
	}
	if len(submitted) == 0 {
		return report, nil
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	req := opensearchapi.BulkRequest{Index: s.index, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		s.logger.Error("bulk indexing failed", zap.Int("records", len(submitted)), zap.Error(err))
		failSubmitted(report, submitted, "bulk request failed: "+err.Error())
		return report, nil
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		failSubmitted(report, submitted, "read bulk response: "+err.Error())
		return report, nil
	}
	if resp.IsError() {
		s.logger.Error("bulk indexing rejected", zap.Int("status", resp.StatusCode))
		failSubmitted(report, submitted, fmt.Sprintf("bulk request rejected: status %d", resp.StatusCode))
		return report, nil
	}

	succeeded, failedItems, err := parseBulkResponse(raw)
	if err != nil {
		failSubmitted(report, submitted, err.Error())
		return report, nil
	}
	report.Succeeded += succeeded
	report.Failed += len(failedItems)
	report.FailedItems = append(report.FailedItems, failedItems...)
	if report.Failed > 0 {
		s.logger.Error("bulk indexing completed with failures",
			zap.Int("succeeded", report.Succeeded), zap.Int("failed", report.Failed))
	}
	return report, nil
}

// failSubmitted records a failure item for every submitted record. Nothing
// reached the index when the bulk call itself fails, and callers rely on
// FailedItems to know which records need retrying.
func failSubmitted(report *models.BulkReport, submitted []*models.IndexRecord, reason string) {
	report.Failed += len(submitted)
	for _, rec := range submitted {
		report.FailedItems = append(report.FailedItems, models.FailedItem{ID: rec.ID, Reason: reason})
	}
}

// bulkPayload builds the NDJSON bulk body. Invalid records are pre-counted
// as failures in the returned report; submitted holds the records encoded
// into the body.
func bulkPayload(index string, records []*models.IndexRecord, dimensions int) (body []byte, submitted []*models.IndexRecord, report *models.BulkReport) {
	report = &models.BulkReport{}
	var buf bytes.Buffer
	for _, rec := range records {
		if reason := validateRecord(rec, dimensions); reason != "" {
			report.Failed++
			report.FailedItems = append(report.FailedItems, models.FailedItem{ID: rec.ID, Reason: reason})
			continue
		}
		action := map[string]map[string]string{"index": {"_index": index}}
		if rec.ID != "" {
			// Deterministic IDs make re-indexing the same source overwrite
			// instead of duplicate.
			action["index"]["_id"] = rec.ID
		}
		meta, _ := json.Marshal(action)
		src, _ := json.Marshal(map[string]any{
			fieldVector: rec.Vector,
			fieldText:   rec.Text,
			fieldMeta:   rec.Metadata,
		})
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(src)
		buf.WriteByte('\n')
		submitted = append(submitted, rec)
	}
	return buf.Bytes(), submitted, report
}

// parseBulkResponse extracts per-item outcomes from a bulk API response.
func parseBulkResponse(raw []byte) (succeeded int, failed []models.FailedItem, err error) {
	var resp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, nil, fmt.Errorf("parse bulk response: %w", err)
	}
	for _, item := range resp.Items {
		for _, outcome := range item {
			if outcome.Error != nil || outcome.Status >= 300 {
				reason := fmt.Sprintf("status %d", outcome.Status)
				if outcome.Error != nil {
					reason = outcome.Error.Reason
				}
				failed = append(failed, models.FailedItem{ID: outcome.ID, Reason: reason})
			} else {
				succeeded++
			}
		}
	}
	return succeeded, failed, nil
}

// Search runs a kNN query and returns hits in score order.
func (s *OpenSearchStore) Search(ctx context.Context, vector []float32, k int) ([]*models.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	body, err := knnQueryBody(vector, k)
	if err != nil {
		return nil, err
	}
	req := opensearchapi.SearchRequest{Index: []string{s.index}, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search index %s: %w", s.index, err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("search index %s: %s", s.index, resp.String())
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return parseSearchResponse(raw)
}

// knnQueryBody builds the kNN search request payload.
func knnQueryBody(vector []float32, k int) ([]byte, error) {
	return json.Marshal(map[string]any{
		"size": k,
		"query": map[string]any{
			"knn": map[string]any{
				fieldVector: map[string]any{"vector": vector, "k": k},
			},
		},
	})
}

// parseSearchResponse maps search hits onto QueryResults, keeping ranking order.
func parseSearchResponse(raw []byte) ([]*models.QueryResult, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Text     string               `json:"text_chunk"`
					Metadata models.ChunkMetadata `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	results := make([]*models.QueryResult, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		results = append(results, &models.QueryResult{
			Text:     hit.Source.Text,
			Score:    hit.Score,
			Metadata: hit.Source.Metadata,
		})
	}
	return results, nil
}
