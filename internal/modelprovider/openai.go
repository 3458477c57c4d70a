package modelprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider is a Provider backed by github.com/openai/openai-go/v3,
// grounded on Tangerg-lynx/ai/extensions/models/openai's Api type: a
// validated config produces a client held for the provider's lifetime, and
// every call builds fresh request params rather than mutating shared state.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds an OpenAIProvider. apiKey is required; baseURL
// overrides the default endpoint when set (self-hosted/proxy deployments).
func NewOpenAIProvider(apiKey, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("modelprovider: openai api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, model string, req CompletionRequest) (CompletionResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("modelprovider: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, errors.New("modelprovider: openai returned no choices")
	}

	return CompletionResult{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  int(resp.Usage.PromptTokens),
		TokensOut: int(resp.Usage.CompletionTokens),
		Model:     string(resp.Model),
	}, nil
}
