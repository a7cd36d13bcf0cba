package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/dispatch"
	"github.com/kensaku-io/kensaku/internal/models"
)

// 50 MB upload cap; matches the largest documents the pipeline is sized for.
const maxUploadBytes = 50 << 20

type queryResponse struct {
	Results    []*models.QueryResult    `json:"results"`
	Context    string                   `json:"context"`
	Highlights []models.HighlightRegion `json:"highlights,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Retrieve.DefaultLimit, s.config.Retrieve.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("limit", req.Limit))

	results, err := s.retriever.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := queryResponse{
		Results: results,
		Context: s.retriever.BuildContext(results),
	}
	if req.Highlights {
		resp.Highlights = s.retriever.Highlights(results)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int("bytes", len(content)))

	// The client-supplied filename is a display name, not a stable identity:
	// two different documents uploaded under the same name must not overwrite
	// each other, so every upload gets a fresh source.
	source := "upload:" + uuid.NewString() + ":" + header.Filename
	chunks, err := s.pipeline.IngestBytes(r.Context(), source, header.Filename, content)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	indexed, failed, err := s.pipeline.Flush(r.Context())
	if err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusCreated
	if failed > 0 {
		status = http.StatusInternalServerError
	}
	s.respondJSON(w, status, map[string]any{
		"filename":       header.Filename,
		"chunks":         chunks,
		"chunks_indexed": indexed,
		"chunks_failed":  failed,
	})
}

type crawlRequest struct {
	SitemapURL string   `json:"sitemap_url,omitempty"`
	URLs       []string `json:"urls,omitempty"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	urls := append([]string(nil), req.URLs...)
	if req.SitemapURL != "" {
		if content := s.fetcher.FetchSitemap(r.Context(), req.SitemapURL); content != nil {
			parsed, err := dispatch.ParseSitemap(content)
			if err != nil {
				s.logger.Error("failed to parse sitemap", zap.String("url", req.SitemapURL), zap.Error(err))
			}
			urls = append(urls, parsed...)
		}
	}
	if len(urls) == 0 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"message": "No URLs found to process."})
		return
	}
	if s.dispatcher == nil {
		s.respondError(w, http.StatusInternalServerError, "work queue is not configured")
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), urls)
	if err != nil {
		s.logger.Error("dispatch failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// A partial dispatch is a server-side failure, but the counts still go
	// back to the caller so it can retry precisely.
	status := http.StatusOK
	message := "URLs sent to queue."
	if result.Failed > 0 {
		status = http.StatusInternalServerError
		message = "Some URLs could not be sent to the queue."
	}
	s.respondJSON(w, status, map[string]any{
		"message":        message,
		"sent_to_queue":  result.Sent,
		"failed_to_send": result.Failed,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.spool.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: spool stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"spool": map[string]int64{
			"pending": counts.Pending,
			"indexed": counts.Indexed,
			"failed":  counts.Failed,
		},
		"config": map[string]any{
			"embedding_backend":    s.config.Embedding.Backend,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_max_tokens":     s.config.Chunking.MaxTokens,
			"store_index":          s.config.Store.Index,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
