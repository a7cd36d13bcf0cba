package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/pkg/utils"
)

// BedrockClient is the slice of the Bedrock runtime API the embedder uses.
type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder embeds text through an AWS Bedrock embedding model.
// Request and response shapes depend on the model family (Titan, Cohere).
type BedrockEmbedder struct {
	client        BedrockClient
	modelID       string
	dimensions    int
	maxInputChars int
	logger        *zap.Logger
}

// NewBedrockEmbedder creates a Bedrock-backed embedder for the given model.
func NewBedrockEmbedder(client BedrockClient, modelID string, dimensions, maxInputChars int, logger *zap.Logger) *BedrockEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockEmbedder{
		client:        client,
		modelID:       modelID,
		dimensions:    dimensions,
		maxInputChars: maxInputChars,
		logger:        logger,
	}
}

// Dimensions returns the configured vector length.
func (e *BedrockEmbedder) Dimensions() int { return e.dimensions }

// Embed returns the embedding vector for text. Empty text is a no-op;
// oversized text is truncated to the input limit with a warning, and the
// caller still gets a result.
func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
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

	body, err := bedrockRequestBody(e.modelID, text)
	if err != nil {
		return nil, err
	}
	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke bedrock model %s: %w", e.modelID, err)
	}
	vec, err := parseBedrockResponse(e.modelID, out.Body)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// bedrockRequestBody builds the model-family-specific request payload.
func bedrockRequestBody(modelID, text string) ([]byte, error) {
	switch {
	case strings.Contains(modelID, "titan"):
		return json.Marshal(map[string]string{"inputText": text})
	case strings.Contains(modelID, "cohere"):
		return json.Marshal(map[string]any{
			"texts":      []string{text},
			"input_type": "search_document",
		})
	default:
		return nil, fmt.Errorf("unsupported bedrock embedding model %q", modelID)
	}
}

// parseBedrockResponse extracts the vector from the model-family-specific
// response payload.
func parseBedrockResponse(modelID string, body []byte) ([]float32, error) {
	switch {
	case strings.Contains(modelID, "titan"):
		var resp struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse bedrock response: %w", err)
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("bedrock model %s: %w", modelID, ErrEmptyVector)
		}
		return resp.Embedding, nil
	case strings.Contains(modelID, "cohere"):
		var resp struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse bedrock response: %w", err)
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("bedrock model %s: %w", modelID, ErrEmptyVector)
		}
		return resp.Embeddings[0], nil
	default:
		return nil, fmt.Errorf("unsupported bedrock embedding model %q", modelID)
	}
}
