package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/chunker"
	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/dispatch"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/extract"
	"github.com/kensaku-io/kensaku/internal/ingest"
	"github.com/kensaku-io/kensaku/internal/retrieve"
	"github.com/kensaku-io/kensaku/internal/spool"
	"github.com/kensaku-io/kensaku/internal/store"
)

type fakeSQS struct {
	entries []types.SendMessageBatchRequestEntry
	err     error
}

func (f *fakeSQS) SendMessageBatch(_ context.Context, in *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	f.entries = append(f.entries, in.Entries...)
	if f.err != nil {
		return nil, f.err
	}
	out := &sqs.SendMessageBatchOutput{}
	for _, e := range in.Entries {
		out.Successful = append(out.Successful, types.SendMessageBatchResultEntry{Id: e.Id})
	}
	return out, nil
}

func newTestServer(t *testing.T, sqsClient dispatch.SQSClient) *Server {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = 8

	sp, err := spool.Open(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sp.Close() })

	emb := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	st, err := store.NewMemoryStore(emb.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	ch, err := chunker.New(chunker.WordTokenizer{}, cfg.Chunking.MaxTokens)
	if err != nil {
		t.Fatal(err)
	}
	pipeline, err := ingest.New(extract.NewExtractor(), ch, sp, emb, st)
	if err != nil {
		t.Fatal(err)
	}
	retriever, err := retrieve.New(emb, st, cfg.Retrieve)
	if err != nil {
		t.Fatal(err)
	}

	var dispatcher *dispatch.Dispatcher
	if sqsClient != nil {
		dispatcher = dispatch.NewDispatcher(sqsClient, "https://sqs.example/queue", cfg.Queue.BatchSize, zap.NewNop())
	}
	return NewServer(pipeline, retriever, dispatcher, dispatch.NewFetcher(nil), sp, cfg, zap.NewNop())
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status=%d", rec.Code)
	}
}

func uploadFile(t *testing.T, handler http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()

	rec := uploadFile(t, router, "notes.txt", "The deployment runbook lives in the operations handbook.")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status=%d body=%s", rec.Code, rec.Body.String())
	}
	var upload struct {
		Indexed int `json:"chunks_indexed"`
		Failed  int `json:"chunks_failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &upload); err != nil {
		t.Fatal(err)
	}
	if upload.Indexed == 0 || upload.Failed != 0 {
		t.Errorf("upload response=%+v", upload)
	}

	rec = postJSON(t, router, "/api/v1/query", map[string]any{
		"query": "The deployment runbook lives in the operations handbook.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if !strings.Contains(resp.Context, "Source: notes.txt") {
		t.Errorf("context missing citation:\n%s", resp.Context)
	}
}

func TestUploadSameFilenameDistinctDocuments(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()

	if rec := uploadFile(t, router, "a.txt", "The first report covers quarterly revenue."); rec.Code != http.StatusCreated {
		t.Fatalf("first upload status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := uploadFile(t, router, "a.txt", "The second report covers annual headcount."); rec.Code != http.StatusCreated {
		t.Fatalf("second upload status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec := postJSON(t, router, "/api/v1/query", map[string]any{
		"query": "report",
		"limit": 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("both documents should be retrievable, got %d results", len(resp.Results))
	}
}

func TestQueryEmptyRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := postJSON(t, srv.Router(), "/api/v1/query", map[string]any{"query": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status=%d", rec.Code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	srv := newTestServer(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status=%d", rec.Code)
	}
}

func TestCrawlExplicitURLs(t *testing.T) {
	client := &fakeSQS{}
	srv := newTestServer(t, client)
	rec := postJSON(t, srv.Router(), "/api/v1/crawl", map[string]any{
		"urls": []string{"https://example.com/a", "https://example.com/b"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Sent   int `json:"sent_to_queue"`
		Failed int `json:"failed_to_send"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Sent != 2 || resp.Failed != 0 {
		t.Errorf("response=%+v", resp)
	}
	if len(client.entries) != 2 {
		t.Errorf("queue received %d entries", len(client.entries))
	}
	if aws.ToString(client.entries[0].MessageBody) != "https://example.com/a" {
		t.Errorf("message body=%q", aws.ToString(client.entries[0].MessageBody))
	}
}

func TestCrawlSitemap(t *testing.T) {
	sitemap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<urlset>
  <url><loc>https://example.com/p1</loc></url>
  <url><loc>https://example.com/p2</loc></url>
</urlset>`))
	}))
	defer sitemap.Close()

	client := &fakeSQS{}
	srv := newTestServer(t, client)
	rec := postJSON(t, srv.Router(), "/api/v1/crawl", map[string]any{"sitemap_url": sitemap.URL})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(client.entries) != 2 {
		t.Errorf("queue received %d entries", len(client.entries))
	}
}

func TestCrawlNoURLs(t *testing.T) {
	srv := newTestServer(t, &fakeSQS{})
	rec := postJSON(t, srv.Router(), "/api/v1/crawl", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status=%d", rec.Code)
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "No URLs found to process." {
		t.Errorf("body=%s", rec.Body.String())
	}
}

func TestCrawlDispatchFailure(t *testing.T) {
	srv := newTestServer(t, &fakeSQS{err: errors.New("queue unavailable")})
	rec := postJSON(t, srv.Router(), "/api/v1/crawl", map[string]any{
		"urls": []string{"https://example.com/a"},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp struct {
		Sent   int `json:"sent_to_queue"`
		Failed int `json:"failed_to_send"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Failed != 1 {
		t.Errorf("response=%+v", resp)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "spool") {
		t.Errorf("body=%s", rec.Body.String())
	}
}
