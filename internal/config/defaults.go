package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "bedrock"
	}
	if cfg.Embedding.ModelID == "" {
		cfg.Embedding.ModelID = "amazon.titan-embed-text-v1"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.MaxInputChars == 0 {
		cfg.Embedding.MaxInputChars = 8000
	}
	if cfg.Queue.BatchSize == 0 {
		// SQS SendMessageBatch accepts at most 10 entries.
		cfg.Queue.BatchSize = 10
	}
	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 8191
	}
	if cfg.Retrieve.DefaultLimit == 0 {
		cfg.Retrieve.DefaultLimit = 3
	}
	if cfg.Retrieve.MaxLimit == 0 {
		cfg.Retrieve.MaxLimit = 50
	}
	if cfg.Retrieve.ExcerptWords == 0 {
		cfg.Retrieve.ExcerptWords = 50
	}
	if cfg.Retrieve.ExcerptOverlap == 0 {
		cfg.Retrieve.ExcerptOverlap = 5
	}
	if cfg.Retrieve.PDFDir == "" {
		cfg.Retrieve.PDFDir = "./data/pdfs"
	}
	if cfg.Spool.DatabasePath == "" {
		cfg.Spool.DatabasePath = "./data/spool.db"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".html"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
