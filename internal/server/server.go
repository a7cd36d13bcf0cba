// Package server provides the HTTP API for Kensaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/dispatch"
	"github.com/kensaku-io/kensaku/internal/ingest"
	"github.com/kensaku-io/kensaku/internal/retrieve"
	"github.com/kensaku-io/kensaku/internal/spool"
)

// Server is the HTTP server for the Kensaku API.
type Server struct {
	pipeline   *ingest.Pipeline
	retriever  *retrieve.Retriever
	dispatcher *dispatch.Dispatcher
	fetcher    *dispatch.Fetcher
	spool      *spool.Spool
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. The dispatcher may
// be nil when no work queue is configured; the crawl endpoint then reports
// the configuration error.
func NewServer(
	pipeline *ingest.Pipeline,
	retriever *retrieve.Retriever,
	dispatcher *dispatch.Dispatcher,
	fetcher *dispatch.Fetcher,
	sp *spool.Spool,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline:   pipeline,
		retriever:  retriever,
		dispatcher: dispatcher,
		fetcher:    fetcher,
		spool:      sp,
		config:     cfg,
		logger:     logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/documents", s.handleUploadDocument)
	r.Post("/api/v1/crawl", s.handleCrawl)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
