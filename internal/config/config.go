// Package config provides configuration loading and structs for the Kensaku server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration errors are fatal: they abort an operation before any work is
// attempted. Per-item errors elsewhere are counted, never fatal.
var (
	ErrMissingQueueURL      = errors.New("queue url is not configured")
	ErrMissingStoreEndpoint = errors.New("store endpoint is not configured")
	ErrMissingStoreIndex    = errors.New("store index is not configured")
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Queue     QueueConfig     `yaml:"queue"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Spool     SpoolConfig     `yaml:"spool"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig holds vector-store (OpenSearch) settings. When Username and
// Password are empty, requests are signed with the AWS default credential
// chain for the configured region instead.
type StoreConfig struct {
	Endpoint string `yaml:"endpoint"`
	Index    string `yaml:"index"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Region   string `yaml:"region"`
}

// EmbeddingConfig holds embedding backend settings. Backend selects the
// adapter: "bedrock" (ModelID) or "sagemaker" (EndpointName).
type EmbeddingConfig struct {
	Backend       string `yaml:"backend"`
	ModelID       string `yaml:"model_id"`
	EndpointName  string `yaml:"endpoint_name"`
	Dimensions    int    `yaml:"dimensions"`
	MaxInputChars int    `yaml:"max_input_chars"`
}

// QueueConfig holds work-queue (SQS) settings for URL dispatch.
type QueueConfig struct {
	URL       string `yaml:"url"`
	Region    string `yaml:"region"`
	BatchSize int    `yaml:"batch_size"`
}

// ChunkingConfig holds token-budget settings for the chunker.
type ChunkingConfig struct {
	MaxTokens int `yaml:"max_tokens"`
}

// RetrieveConfig holds query-time settings: result limits, excerpt
// windowing, and where rendered source PDFs live for highlight lookup.
type RetrieveConfig struct {
	DefaultLimit   int    `yaml:"default_limit"`
	MaxLimit       int    `yaml:"max_limit"`
	ExcerptWords   int    `yaml:"excerpt_words"`
	ExcerptOverlap int    `yaml:"excerpt_overlap"`
	PDFDir         string `yaml:"pdf_dir"`
}

// SpoolConfig holds the chunk spool database path.
type SpoolConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig holds directory watch settings for automatic file ingestion.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and
// environment overrides, and expands relative paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	configDir := filepath.Dir(path)
	cfg.Spool.DatabasePath = expandPath(cfg.Spool.DatabasePath, configDir)
	cfg.Retrieve.PDFDir = expandPath(cfg.Retrieve.PDFDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// applyEnvOverrides lets credentials and endpoints come from the
// environment so they stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KENSAKU_OPENSEARCH_ENDPOINT"); v != "" {
		cfg.Store.Endpoint = v
	}
	if v := os.Getenv("KENSAKU_OPENSEARCH_INDEX"); v != "" {
		cfg.Store.Index = v
	}
	if v := os.Getenv("KENSAKU_OPENSEARCH_USER"); v != "" {
		cfg.Store.Username = v
	}
	if v := os.Getenv("KENSAKU_OPENSEARCH_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("KENSAKU_QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		if cfg.Store.Region == "" {
			cfg.Store.Region = v
		}
		if cfg.Queue.Region == "" {
			cfg.Queue.Region = v
		}
	}
}

// ValidateStore checks that the vector store is reachable by configuration.
func (c *Config) ValidateStore() error {
	if c.Store.Endpoint == "" {
		return ErrMissingStoreEndpoint
	}
	if c.Store.Index == "" {
		return ErrMissingStoreIndex
	}
	return nil
}

// ValidateQueue checks that a dispatch target is configured.
func (c *Config) ValidateQueue() error {
	if c.Queue.URL == "" {
		return ErrMissingQueueURL
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
