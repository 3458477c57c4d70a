package selector_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/evaluator"
	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/selector"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

func newLoader(t *testing.T) *agentpkg.TemplateLoader {
	t.Helper()
	loader, err := agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		"selector_agent":   {SystemTemplate: "pick one of {{.TiedCandidateIndices}}.", UserTemplate: "{{.Question}}"},
		"supervisor_agent": {SystemTemplate: "approve {{.SQL}}?", UserTemplate: "{{.Question}}"},
	})
	require.NoError(t, err)
	return loader
}

func intParser(raw string) (int, error) { return strconv.Atoi(raw) }

func boolParser(raw string) (bool, error) { return raw == "true", nil }

func newSelectorAgent(t *testing.T, response string) *agentpkg.AgentAdapter[int] {
	t.Helper()
	registry := modelprovider.NewRegistry()
	provider := modelprovider.NewMockProvider()
	provider.Responses["m1"] = []modelprovider.CompletionResult{{Text: response}}
	registry.Register("p", provider)
	cfg := workspace.AgentConfig{
		Name:        "selector_agent",
		Primary:     workspace.ModelHandle{Provider: "p", ModelID: "m1"},
		TemplateKey: "selector_agent",
	}
	return agentpkg.NewAgentAdapter[int](cfg, registry, newLoader(t), intParser, zap.NewNop().Sugar())
}

func newSupervisorAgent(t *testing.T, approve bool) *agentpkg.AgentAdapter[bool] {
	t.Helper()
	registry := modelprovider.NewRegistry()
	provider := modelprovider.NewMockProvider()
	text := "false"
	if approve {
		text = "true"
	}
	provider.Responses["m1"] = []modelprovider.CompletionResult{{Text: text}}
	registry.Register("p", provider)
	cfg := workspace.AgentConfig{
		Name:        "supervisor_agent",
		Primary:     workspace.ModelHandle{Provider: "p", ModelID: "m1"},
		TemplateKey: "supervisor_agent",
	}
	return agentpkg.NewAgentAdapter[bool](cfg, registry, newLoader(t), boolParser, zap.NewNop().Sugar())
}

func TestDecideCaseASinglePerfectCandidate(t *testing.T) {
	s := selector.NewSelector(nil, nil)

	matrix := evaluator.Matrix{PassRate: []float64{1.0, 0.5}}
	candidates := []sqltest.SQLCandidate{{Normalized: "a"}, {Normalized: "b"}}
	tests := []sqltest.Test{{Text: "t1"}}

	decision, err := s.Decide(context.Background(), selector.Params{
		Question:   "how many rows",
		Candidates: candidates,
		Tests:      tests,
		Matrix:     matrix,
		Threshold:  0.6,
	})
	require.NoError(t, err)
	require.Equal(t, selector.CaseA, decision.Case)
	require.Equal(t, selector.StatusGold, decision.Status)
	require.Equal(t, 0, decision.SelectedIndex)
}

func TestDecideCaseBInvokesSelectorAgentAmongTies(t *testing.T) {
	s := selector.NewSelector(newSelectorAgent(t, "1"), nil)

	matrix := evaluator.Matrix{PassRate: []float64{1.0, 1.0}}
	candidates := []sqltest.SQLCandidate{{Normalized: "a"}, {Normalized: "b"}}

	decision, err := s.Decide(context.Background(), selector.Params{
		Question:   "how many rows",
		Candidates: candidates,
		Matrix:     matrix,
		Threshold:  0.6,
	})
	require.NoError(t, err)
	require.Equal(t, selector.CaseB, decision.Case)
	require.Equal(t, selector.StatusGold, decision.Status)
	require.Equal(t, 1, decision.SelectedIndex)
}

func TestDecideExcludesEvidenceCriticalFailureFromCaseA(t *testing.T) {
	s := selector.NewSelector(nil, newSupervisorAgent(t, true))

	matrix := evaluator.Matrix{PassRate: []float64{1.0, 0.7}}
	candidates := []sqltest.SQLCandidate{{Normalized: "a"}, {Normalized: "b"}}
	tests := []sqltest.Test{{Text: "t1", EvidenceCritical: true}}

	decision, err := s.Decide(context.Background(), selector.Params{
		Question:              "how many rows",
		Candidates:            candidates,
		Tests:                 tests,
		Matrix:                matrix,
		Threshold:             0.6,
		EscalationAttempts:    0,
		MaxEscalationAttempts: 1,
	})
	require.NoError(t, err)
	require.Equal(t, selector.CaseC, decision.Case)
	require.Equal(t, selector.StatusSilver, decision.Status)
	require.Equal(t, 0, decision.SelectedIndex)
}

func TestDecideCaseDEscalatesWhenBelowThresholdAndAttemptsRemain(t *testing.T) {
	s := selector.NewSelector(nil, nil)

	matrix := evaluator.Matrix{PassRate: []float64{0.2, 0.1}}
	candidates := []sqltest.SQLCandidate{{Normalized: "a"}, {Normalized: "b"}}

	decision, err := s.Decide(context.Background(), selector.Params{
		Candidates:            candidates,
		Matrix:                matrix,
		Threshold:             0.6,
		EscalationAttempts:    0,
		MaxEscalationAttempts: 2,
	})
	require.NoError(t, err)
	require.Equal(t, selector.CaseD, decision.Case)
	require.True(t, decision.Escalate)
	require.Equal(t, -1, decision.SelectedIndex)
}

func TestDecideCaseDFailsWhenEscalationExhausted(t *testing.T) {
	s := selector.NewSelector(nil, nil)

	matrix := evaluator.Matrix{PassRate: []float64{0.2}}
	candidates := []sqltest.SQLCandidate{{Normalized: "a"}}

	decision, err := s.Decide(context.Background(), selector.Params{
		Candidates:            candidates,
		Matrix:                matrix,
		Threshold:             0.6,
		EscalationAttempts:    2,
		MaxEscalationAttempts: 2,
	})
	require.NoError(t, err)
	require.Equal(t, selector.CaseD, decision.Case)
	require.Equal(t, selector.StatusFailed, decision.Status)
}

func TestDecideCaseCRejectionEscalatesWhenAttemptsRemain(t *testing.T) {
	s := selector.NewSelector(nil, newSupervisorAgent(t, false))

	matrix := evaluator.Matrix{PassRate: []float64{0.7}}
	candidates := []sqltest.SQLCandidate{{Normalized: "a"}}

	decision, err := s.Decide(context.Background(), selector.Params{
		Candidates:            candidates,
		Matrix:                matrix,
		Threshold:             0.6,
		EscalationAttempts:    0,
		MaxEscalationAttempts: 1,
	})
	require.NoError(t, err)
	require.Equal(t, selector.CaseC, decision.Case)
	require.True(t, decision.Escalate)
}

func TestReconfirmDegradesGoldToCaseCViaSupervisor(t *testing.T) {
	s := selector.NewSelector(nil, newSupervisorAgent(t, true))
	decision := selector.Decision{Case: selector.CaseA, Status: selector.StatusGold, SelectedIndex: 0}

	degraded, err := s.Reconfirm(context.Background(), selector.Params{
		Candidates:            []sqltest.SQLCandidate{{Normalized: "a"}},
		Matrix:                evaluator.Matrix{PassRate: []float64{1.0}},
		Threshold:             0.6,
		EscalationAttempts:    0,
		MaxEscalationAttempts: 1,
	}, decision, 0.4)
	require.NoError(t, err)
	require.Equal(t, selector.CaseC, degraded.Case)
	require.Equal(t, selector.StatusSilver, degraded.Status)
}

func TestReconfirmLeavesGoldUntouchedWhenConfirmed(t *testing.T) {
	s := selector.NewSelector(nil, nil)
	decision := selector.Decision{Case: selector.CaseA, Status: selector.StatusGold, SelectedIndex: 0}

	confirmed, err := s.Reconfirm(context.Background(), selector.Params{
		Threshold: 0.6,
	}, decision, 0.9)
	require.NoError(t, err)
	require.Equal(t, decision, confirmed)
}
