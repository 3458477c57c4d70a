package vdbmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIEmbedder implements Embedder against the embedding provider's
// OpenAI-compatible endpoint (spec §6: EMBEDDING_PROVIDER, EMBEDDING_API_KEY,
// EMBEDDING_MODEL). A dedicated client keeps the chat-completion Provider
// registry (internal/modelprovider) free of embedding concerns, since a
// workspace's chat model and its embedding model are independently
// configured and may even point at different providers.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an OpenAIEmbedder. apiKey and model are required;
// baseURL overrides the default endpoint for self-hosted/proxy deployments.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" || model == "" {
		return nil, errors.New("vdbmanager: embedding api key and model are required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIEmbedder{client: &client, model: model}, nil
}

// Embed returns text's dense embedding vector as float32.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("vdbmanager: embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("vdbmanager: embedding response had no data")
	}

	values := resp.Data[0].Embedding
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}
