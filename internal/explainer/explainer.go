// Package explainer implements ExplainerAgent (spec §4.12): a lazy
// natural-language explanation of the selected SQL, rendered in
// question_language only when explain_generated_sql is set.
package explainer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/pipeline"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
)

// Explainer adapts an AgentAdapter[string] into pipeline.ExplainerAgent.
type Explainer struct {
	agent *agentpkg.AgentAdapter[string]
}

// New builds an Explainer bound to its explainer_agent adapter.
func New(agent *agentpkg.AgentAdapter[string]) *Explainer {
	return &Explainer{agent: agent}
}

// Explain renders the selected SQL's system prompt deps and returns the
// model's natural-language explanation verbatim (spec §4.12: no
// post-processing beyond trimming narration whitespace).
func (e *Explainer) Explain(ctx context.Context, deps pipeline.ExplainDeps) (string, error) {
	text, err := e.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{
			"Question": deps.Question,
			"SQL":      deps.SQL,
			"MSchema":  deps.MSchema,
			"Evidence": evidenceStrings(deps.Evidence),
			"Language": deps.Language,
		},
		Vars: map[string]any{"Question": deps.Question, "SQL": deps.SQL},
	})
	if err != nil {
		return "", fmt.Errorf("explainer: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func evidenceStrings(hits []vdbmanager.Hit) []string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts
}

// IdentityParser passes the model's raw text through unchanged; the
// explainer has no structured output to decode.
func IdentityParser(raw string) (string, error) { return raw, nil }
