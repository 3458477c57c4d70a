package modelprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is a Provider backed by
// github.com/anthropics/anthropic-sdk-go, the second concrete binding named
// in Tangerg-lynx/models/go.mod. It mirrors OpenAIProvider's shape: a
// validated client built once, a stateless Complete per call.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider builds an AnthropicProvider. apiKey is required.
func NewAnthropicProvider(apiKey, baseURL string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("modelprovider: anthropic api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}, nil
}

func (p *AnthropicProvider) Complete(ctx context.Context, model string, req CompletionRequest) (CompletionResult, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("modelprovider: anthropic completion: %w", err)
	}
	if len(resp.Content) == 0 {
		return CompletionResult{}, errors.New("modelprovider: anthropic returned no content blocks")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return CompletionResult{
		Text:      text,
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
		Model:     string(resp.Model),
	}, nil
}
