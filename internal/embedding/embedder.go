// Package embedding provides text embedding via pluggable remote backends.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/config"
)

// ErrEmptyVector is returned when a backend responds without a usable
// vector. A backend returning an empty or non-numeric payload is an error,
// never a silent nil.
var ErrEmptyVector = errors.New("embedding backend returned no vector")

// Embedder produces a fixed-length vector for text. Embedding empty text
// returns (nil, nil) without calling the backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NewEmbedder builds the configured backend adapter. The backend selector
// distinguishes "bedrock" and "sagemaker"; anything else is a configuration
// error.
func NewEmbedder(cfg *config.EmbeddingConfig, awsCfg aws.Config, logger *zap.Logger) (Embedder, error) {
	switch strings.ToLower(cfg.Backend) {
	case "bedrock":
		return NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID, cfg.Dimensions, cfg.MaxInputChars, logger), nil
	case "sagemaker":
		if cfg.EndpointName == "" {
			return nil, fmt.Errorf("embedding backend sagemaker requires an endpoint name")
		}
		return NewSageMakerEmbedder(sagemakerruntime.NewFromConfig(awsCfg), cfg.EndpointName, cfg.Dimensions, cfg.MaxInputChars, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}

// truncateInput cuts text to at most max bytes on a rune boundary.
func truncateInput(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}
