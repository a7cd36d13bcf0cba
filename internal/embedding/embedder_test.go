package embedding

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"

	"github.com/kensaku-io/kensaku/internal/config"
)

func awsConfigForTest() aws.Config {
	return aws.Config{Region: "us-east-1"}
}

type fakeBedrock struct {
	lastBody []byte
	response []byte
	calls    int
	err      error
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.calls++
	f.lastBody = in.Body
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.response}, nil
}

func TestBedrockEmbedTitan(t *testing.T) {
	client := &fakeBedrock{response: []byte(`{"embedding": [0.1, 0.2, 0.3]}`)}
	e := NewBedrockEmbedder(client, "amazon.titan-embed-text-v1", 3, 8000, nil)
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length=%d", len(vec))
	}
	var req map[string]string
	if err := json.Unmarshal(client.lastBody, &req); err != nil {
		t.Fatal(err)
	}
	if req["inputText"] != "hello" {
		t.Errorf("request body=%s", client.lastBody)
	}
}

func TestBedrockEmbedCohere(t *testing.T) {
	client := &fakeBedrock{response: []byte(`{"embeddings": [[1, 2]]}`)}
	e := NewBedrockEmbedder(client, "cohere.embed-english-v3", 2, 8000, nil)
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vector length=%d", len(vec))
	}
	if !strings.Contains(string(client.lastBody), "search_document") {
		t.Errorf("request body=%s", client.lastBody)
	}
}

func TestBedrockEmbedEmptyTextSkipsBackend(t *testing.T) {
	client := &fakeBedrock{}
	e := NewBedrockEmbedder(client, "amazon.titan-embed-text-v1", 3, 8000, nil)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vec != nil {
		t.Errorf("expected nil vector, got %v", vec)
	}
	if client.calls != 0 {
		t.Errorf("backend should not be called for empty text, calls=%d", client.calls)
	}
}

func TestBedrockEmbedTruncates(t *testing.T) {
	client := &fakeBedrock{response: []byte(`{"embedding": [0.5]}`)}
	e := NewBedrockEmbedder(client, "amazon.titan-embed-text-v1", 1, 10, nil)
	if _, err := e.Embed(context.Background(), strings.Repeat("x", 50)); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	var req map[string]string
	if err := json.Unmarshal(client.lastBody, &req); err != nil {
		t.Fatal(err)
	}
	if len(req["inputText"]) != 10 {
		t.Errorf("input should be truncated to 10 chars, got %d", len(req["inputText"]))
	}
}

func TestBedrockEmbedEmptyPayload(t *testing.T) {
	client := &fakeBedrock{response: []byte(`{"embedding": []}`)}
	e := NewBedrockEmbedder(client, "amazon.titan-embed-text-v1", 3, 8000, nil)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error for empty embedding payload")
	}
}

func TestBedrockUnsupportedModel(t *testing.T) {
	e := NewBedrockEmbedder(&fakeBedrock{}, "anthropic.claude-v2", 3, 8000, nil)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error for unsupported model family")
	}
}

type fakeSageMaker struct {
	response []byte
}

func (f *fakeSageMaker) InvokeEndpoint(_ context.Context, _ *sagemakerruntime.InvokeEndpointInput, _ ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error) {
	return &sagemakerruntime.InvokeEndpointOutput{Body: f.response}, nil
}

func TestSageMakerResponseShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLen int
		wantErr bool
	}{
		{"bare vector", `[0.1, 0.2]`, 2, false},
		{"nested list", `[[0.1, 0.2, 0.3]]`, 3, false},
		{"embedding object", `{"embedding": [0.4]}`, 1, false},
		{"embeddings object", `{"embeddings": [[0.5, 0.6]]}`, 2, false},
		{"non-numeric", `{"generated_text": "oops"}`, 0, true},
		{"empty", `[]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewSageMakerEmbedder(&fakeSageMaker{response: []byte(tt.body)}, "embed-ep", 3, 8000, nil)
			vec, err := e.Embed(context.Background(), "hello")
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got vector %v", vec)
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed failed: %v", err)
			}
			if len(vec) != tt.wantLen {
				t.Errorf("vector length=%d, want %d", len(vec), tt.wantLen)
			}
		})
	}
}

func TestNewEmbedderUnknownBackend(t *testing.T) {
	cfg := &config.EmbeddingConfig{Backend: "localhost"}
	if _, err := NewEmbedder(cfg, awsConfigForTest(), nil); err == nil {
		t.Error("expected error for unknown backend")
	}
	cfg = &config.EmbeddingConfig{Backend: "sagemaker"}
	if _, err := NewEmbedder(cfg, awsConfigForTest(), nil); err == nil {
		t.Error("expected error for sagemaker without endpoint name")
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(8)
	a, err := m.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.Embed(context.Background(), "same text")
	c, _ := m.Embed(context.Background(), "other text")
	if len(a) != 8 {
		t.Errorf("length=%d", len(a))
	}
	same := true
	diff := false
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
		if a[i] != c[i] {
			diff = true
		}
	}
	if !same {
		t.Error("same text should embed identically")
	}
	if !diff {
		t.Error("different text should embed differently")
	}
	if vec, _ := m.Embed(context.Background(), ""); vec != nil {
		t.Error("empty text should return nil")
	}
}
