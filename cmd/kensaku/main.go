// Package main is the Kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/chunker"
	"github.com/kensaku-io/kensaku/internal/cli"
	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/dispatch"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/extract"
	"github.com/kensaku-io/kensaku/internal/ingest"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/retrieve"
	"github.com/kensaku-io/kensaku/internal/server"
	"github.com/kensaku-io/kensaku/internal/spool"
	"github.com/kensaku-io/kensaku/internal/store"
	"github.com/kensaku-io/kensaku/internal/watcher"
	"github.com/kensaku-io/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// uses the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "index":
		runIndex()
	case "crawl":
		runCrawl()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kensaku <command> [flags]

Commands:
  server   Run the HTTP API server
  ingest   Extract, chunk and spool documents, then index them
  index    Ensure the store index exists and drain the chunk spool
  crawl    Discover URLs from a sitemap and dispatch them to the work queue
  query    Run a similarity query
  status   Show spool and configuration status
  version  Print version

Run "kensaku <command> -h" for command flags.
`)
}

// components holds the wired pipeline pieces shared by the subcommands.
type components struct {
	Spool      *spool.Spool
	Embedder   embedding.Embedder
	Store      store.Store
	Pipeline   *ingest.Pipeline
	Retriever  *retrieve.Retriever
	Dispatcher *dispatch.Dispatcher
	Fetcher    *dispatch.Fetcher
}

func (c *components) Close() {
	if c.Spool != nil {
		_ = c.Spool.Close()
	}
}

// initializeComponents wires the pipeline from config. Without a store
// endpoint an in-memory store is used, which only makes sense for local
// experiments; the log says so.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	ctx := context.Background()
	var awsOpts []func(*awsconfig.LoadOptions) error
	if cfg.Store.Region != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Store.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedding, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if cfg.Store.Endpoint != "" {
		osStore, err := store.NewOpenSearchStore(&cfg.Store, awsCfg, cfg.Embedding.Dimensions, logger)
		if err != nil {
			return nil, err
		}
		if err := osStore.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		st = osStore
	} else {
		logger.Warn("no store endpoint configured, using in-memory store")
		st, err = store.NewMemoryStore(cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
	}

	sp, err := spool.Open(cfg.Spool.DatabasePath)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.WordTokenizer{}, cfg.Chunking.MaxTokens, chunker.WithLogger(logger))
	if err != nil {
		_ = sp.Close()
		return nil, err
	}
	pipeline, err := ingest.New(extract.NewExtractor(), ch, sp, embedder, st, ingest.WithLogger(logger))
	if err != nil {
		_ = sp.Close()
		return nil, err
	}

	highlighter := retrieve.NewHighlighter(cfg.Retrieve.PDFDir, logger)
	retriever, err := retrieve.New(embedder, st, cfg.Retrieve,
		retrieve.WithLogger(logger), retrieve.WithHighlighter(highlighter))
	if err != nil {
		_ = sp.Close()
		return nil, err
	}

	c := &components{
		Spool:     sp,
		Embedder:  embedder,
		Store:     st,
		Pipeline:  pipeline,
		Retriever: retriever,
		Fetcher:   dispatch.NewFetcher(logger),
	}
	if cfg.Queue.URL != "" {
		queueCfg := awsCfg
		if cfg.Queue.Region != "" {
			queueCfg.Region = cfg.Queue.Region
		}
		c.Dispatcher = dispatch.NewDispatcher(sqs.NewFromConfig(queueCfg), cfg.Queue.URL, cfg.Queue.BatchSize, logger)
	}
	return c, nil
}

func newLogger(cfg *config.Config, debugFlag bool) *zap.Logger {
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func mustLoadConfig(path string) (*config.Config, string) {
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath := mustLoadConfig(*configPath)
	logger := newLogger(cfg, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedPath))

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		w := watcher.New(cfg.Watch,
			func(path string) {
				ctx := context.Background()
				if _, err := c.Pipeline.IngestFile(ctx, path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
					return
				}
				if _, _, err := c.Pipeline.Flush(ctx); err != nil {
					logger.Warn("watch flush failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := c.Spool.DeleteBySource(context.Background(), path); err != nil {
					logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		w.SyncExistingFiles()
	}

	srv := server.NewServer(c.Pipeline, c.Retriever, c.Dispatcher, c.Fetcher, c.Spool, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kensaku ingest [flags] <file>...")
		os.Exit(1)
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	ctx := context.Background()
	total := 0
	for _, path := range fs.Args() {
		n, err := c.Pipeline.IngestFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to ingest %s: %v\n", path, err)
			continue
		}
		fmt.Printf("%s: %d chunk(s) spooled\n", path, n)
		total += n
	}
	if total == 0 {
		os.Exit(1)
	}
	indexed, failed, err := c.Pipeline.Flush(ctx)
	if err != nil {
		logger.Fatal("Flush failed", zap.Error(err))
	}
	fmt.Printf("indexed %d chunk(s), %d failed\n", indexed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := mustLoadConfig(*configPath)
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	indexed, failed, err := c.Pipeline.Flush(context.Background())
	if err != nil {
		logger.Fatal("Flush failed", zap.Error(err))
	}
	fmt.Printf("indexed %d chunk(s), %d failed\n", indexed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runCrawl() {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sitemapURL := fs.String("sitemap", "", "sitemap URL to discover page URLs from")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := mustLoadConfig(*configPath)
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	if err := cfg.ValidateQueue(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot crawl: %v\n", err)
		os.Exit(1)
	}

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	ctx := context.Background()
	urls := append([]string(nil), fs.Args()...)
	if *sitemapURL != "" {
		if content := c.Fetcher.FetchSitemap(ctx, *sitemapURL); content != nil {
			parsed, err := dispatch.ParseSitemap(content)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to parse sitemap: %v\n", err)
			}
			urls = append(urls, parsed...)
		}
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "No URLs found to process.")
		os.Exit(1)
	}

	result, err := c.Dispatcher.Dispatch(ctx, urls)
	if err != nil {
		logger.Fatal("Dispatch failed", zap.Error(err))
	}
	fmt.Printf("sent %d URL(s) to queue, %d failed\n", result.Sent, result.Failed)
	if result.Failed > 0 {
		os.Exit(1)
	}
}

// buildQuery joins positional args with spaces so multi-word queries work the
// same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct store access)")
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	highlights := fs.Bool("highlights", false, "compute highlight regions for page-oriented sources")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kensaku query [flags] <query>")
		os.Exit(1)
	}
	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Fprintln(os.Stderr, "Usage: kensaku query [flags] <query>")
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	if *serverURL != "" {
		out, err := queryViaHTTP(*serverURL, &models.QueryRequest{
			Query:      queryStr,
			Limit:      *limit,
			Highlights: *highlights,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteQueryResults(os.Stdout, out, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _ := mustLoadConfig(*configPath)
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	ctx := context.Background()
	results, err := c.Retriever.Search(ctx, queryStr, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	out := &cli.QueryOutput{
		Results: results,
		Context: c.Retriever.BuildContext(results),
	}
	if *highlights {
		out.Highlights = c.Retriever.Highlights(results)
	}
	if err := cli.WriteQueryResults(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req *models.QueryRequest) (*cli.QueryOutput, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out cli.QueryOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := mustLoadConfig(*configPath)
	sp, err := spool.Open(cfg.Spool.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open spool: %v\n", err)
		os.Exit(1)
	}
	defer sp.Close()

	counts, err := sp.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read spool: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("spool_pending:  %d\n", counts.Pending)
	fmt.Printf("spool_indexed:  %d\n", counts.Indexed)
	fmt.Printf("spool_failed:   %d\n", counts.Failed)
	fmt.Println()
	fmt.Println("# configuration")
	fmt.Printf("embedding_backend:  %s\n", cfg.Embedding.Backend)
	fmt.Printf("embedding_dims:     %d\n", cfg.Embedding.Dimensions)
	fmt.Printf("chunk_max_tokens:   %d\n", cfg.Chunking.MaxTokens)
	if cfg.Store.Index != "" {
		fmt.Printf("store_index:        %s\n", cfg.Store.Index)
	}
}
