// Package modelprovider wraps the concrete LLM SDKs behind one narrow
// contract so AgentAdapter (spec §4.2) never imports a vendor SDK directly.
// The shape follows Tangerg-lynx/ai/extensions/models/openai's Api type:
// a thin struct holding a configured client, validated at construction.
package modelprovider

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest is one call to an LLM, already rendered by TemplateLoader.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// CompletionResult carries the text plus the usage counters AgentAdapter logs.
type CompletionResult struct {
	Text      string
	TokensIn  int
	TokensOut int
	Model     string
}

// Provider is the contract every concrete LLM binding implements.
type Provider interface {
	// Complete runs one completion. Provider implementations never retry or
	// fall back; AgentAdapter owns the fallback chain (spec §4.2).
	Complete(ctx context.Context, model string, req CompletionRequest) (CompletionResult, error)
}

// ErrUnknownProvider is returned by a Registry lookup for a provider name
// nothing was registered under.
var ErrUnknownProvider = errors.New("modelprovider: unknown provider")

// Registry resolves a provider name (workspace.ModelHandle.Provider) to a
// concrete Provider. Providers register themselves at construction time in
// cmd/sqlcore's wiring; the registry itself holds no SDK imports.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds name to p, overwriting any existing binding.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Resolve returns the Provider registered under name.
func (r *Registry) Resolve(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}
