package agentpkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// Parser turns raw model text into a typed output. Agents that return plain
// SQL use an identity parser; agents that return structured JSON (tests,
// selector verdicts) use a decoding parser.
type Parser[Out any] func(raw string) (Out, error)

// CallParams is one invocation of an AgentAdapter: the typed dependency
// record for the system prompt, the flat variables for the user prompt, and
// an optional temperature override (AgentPool's fan-out ramps, spec §4.4).
type CallParams struct {
	Deps                map[string]any
	Vars                map[string]any
	TemperatureOverride *float64
}

// AgentAdapter is a typed LLM call bound to one AgentConfig's primary model
// plus its ordered fallback chain (spec §4.2): the first model in the chain
// that returns a parseable result wins, and every attempt is logged at
// {model, attempt, latency, tokens} without ever logging the rendered
// prompt above debug verbosity.
type AgentAdapter[Out any] struct {
	config     workspace.AgentConfig
	registry   *modelprovider.Registry
	templates  *TemplateLoader
	parse      Parser[Out]
	logger     *zap.SugaredLogger
	timeoutSrc TimeoutSource
}

// TimeoutSource supplies the live, SIGHUP-reloadable per-call LLM timeout
// (spec §6 AGENT_TIMEOUT_MS). config.Store satisfies this.
type TimeoutSource interface {
	AgentTimeout() time.Duration
}

// SetTimeoutSource wires a live timeout source in after construction, so
// AGENT_TIMEOUT_MS reload on SIGHUP takes effect on the next Call instead of
// only at NewAgentAdapter time. A nil source (the default) disables per-call
// timeout enforcement.
func (a *AgentAdapter[Out]) SetTimeoutSource(src TimeoutSource) {
	a.timeoutSrc = src
}

// NewAgentAdapter builds an AgentAdapter for one AgentConfig.
func NewAgentAdapter[Out any](
	config workspace.AgentConfig,
	registry *modelprovider.Registry,
	templates *TemplateLoader,
	parse Parser[Out],
	logger *zap.SugaredLogger,
) *AgentAdapter[Out] {
	return &AgentAdapter[Out]{
		config:    config,
		registry:  registry,
		templates: templates,
		parse:     parse,
		logger:    logger,
	}
}

// Name returns the underlying AgentConfig's name, for logging and
// escalation bookkeeping.
func (a *AgentAdapter[Out]) Name() string { return a.config.Name }

// Call renders the prompt once and walks the fallback chain until one model
// both answers and parses, or every model has been tried.
func (a *AgentAdapter[Out]) Call(ctx context.Context, params CallParams) (Out, error) {
	var zero Out

	system, user, err := a.templates.Render(a.config.TemplateKey, params.Deps, params.Vars)
	if err != nil {
		return zero, err
	}

	var lastErr error
	for attempt, handle := range a.config.Chain() {
		provider, rerr := a.registry.Resolve(handle.Provider)
		if rerr != nil {
			lastErr = rerr
			continue
		}

		temperature := handle.Temperature
		if params.TemperatureOverride != nil {
			temperature = *params.TemperatureOverride
		}

		callCtx := ctx
		if a.timeoutSrc != nil {
			if timeout := a.timeoutSrc.AgentTimeout(); timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
		}

		start := time.Now()
		result, cerr := provider.Complete(callCtx, handle.ModelID, modelprovider.CompletionRequest{
			SystemPrompt: system,
			UserPrompt:   user,
			Temperature:  temperature,
			MaxTokens:    handle.MaxTokens,
		})
		latency := time.Since(start)

		if cerr != nil {
			a.logger.Infow("agent call failed",
				"agent", a.config.Name,
				"model", handle.ModelID,
				"attempt", attempt,
				"latency_ms", latency.Milliseconds(),
				"error", cerr,
			)
			lastErr = cerr
			continue
		}

		a.logger.Infow("agent call succeeded",
			"agent", a.config.Name,
			"model", handle.ModelID,
			"attempt", attempt,
			"latency_ms", latency.Milliseconds(),
			"tokens_in", result.TokensIn,
			"tokens_out", result.TokensOut,
		)

		out, perr := a.parse(result.Text)
		if perr != nil {
			lastErr = fmt.Errorf("agentpkg: parse output from %s/%s: %w", a.config.Name, handle.ModelID, perr)
			continue
		}
		return out, nil
	}

	if lastErr == nil {
		lastErr = errors.New("agentpkg: no models configured")
	}
	return zero, fmt.Errorf("agentpkg: agent %s exhausted its fallback chain: %w", a.config.Name, lastErr)
}
