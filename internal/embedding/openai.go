package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIEmbedder generates embeddings with an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIEmbedder creates an embedder for model. baseURL may point at any
// OpenAI-compatible server; empty means the public API.
func NewOpenAIEmbedder(apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithMaxRetries(maxRetries)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}
}

// EmbedText generates an embedding for a text
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.model)
	}
	return resp.Data[0].Embedding, nil
}
