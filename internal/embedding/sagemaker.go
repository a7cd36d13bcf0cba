package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/pkg/utils"
)

// SageMakerClient is the slice of the SageMaker runtime API the embedder uses.
type SageMakerClient interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// SageMakerEmbedder embeds text through a SageMaker inference endpoint.
// Response shapes vary by model container; the parser accepts a bare vector,
// a nested list (sentence-transformers style), or an object keyed
// "embedding"/"embeddings". Anything else is an embedding error.
type SageMakerEmbedder struct {
	client        SageMakerClient
	endpointName  string
	dimensions    int
	maxInputChars int
	logger        *zap.Logger
}

// NewSageMakerEmbedder creates a SageMaker-backed embedder for the given endpoint.
func NewSageMakerEmbedder(client SageMakerClient, endpointName string, dimensions, maxInputChars int, logger *zap.Logger) *SageMakerEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SageMakerEmbedder{
		client:        client,
		endpointName:  endpointName,
		dimensions:    dimensions,
		maxInputChars: maxInputChars,
		logger:        logger,
	}
}

// Dimensions returns the configured vector length.
func (e *SageMakerEmbedder) Dimensions() int { return e.dimensions }

// Embed returns the embedding vector for text. Empty text is a no-op;
// oversized text is truncated to the input limit with a warning.
func (e *SageMakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	if e.maxInputChars > 0 && len(text) > e.maxInputChars {
		e.logger.Warn("embedding input exceeds limit, truncating",
			zap.Int("length", len(text)),
			zap.Int("max", e.maxInputChars),
			zap.String("text", utils.Truncate(text, 80)),
		)
		text = truncateInput(text, e.maxInputChars)
	}

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, err
	}
	out, err := e.client.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(e.endpointName),
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
		Body:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke sagemaker endpoint %s: %w", e.endpointName, err)
	}
	vec, err := parseSageMakerResponse(out.Body)
	if err != nil {
		return nil, fmt.Errorf("sagemaker endpoint %s: %w", e.endpointName, err)
	}
	return vec, nil
}

// parseSageMakerResponse extracts a vector from the known response shapes.
func parseSageMakerResponse(body []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}
	var nested [][]float32
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}
	var obj struct {
		Embedding  []float32   `json:"embedding"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if len(obj.Embedding) > 0 {
			return obj.Embedding, nil
		}
		if len(obj.Embeddings) > 0 && len(obj.Embeddings[0]) > 0 {
			return obj.Embeddings[0], nil
		}
	}
	return nil, ErrEmptyVector
}
