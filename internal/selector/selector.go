// Package selector implements Selector (spec §4.9): the four-case
// decision policy (A/B/C/D) over a candidate pass_rate vector, including
// the selector_agent and supervisor_agent sub-flows and escalation.
package selector

import (
	"context"
	"fmt"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/evaluator"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
)

// Case is RequestState.evaluation_case (spec §3).
type Case string

const (
	CaseA             Case = "A"
	CaseB             Case = "B"
	CaseC             Case = "C"
	CaseD             Case = "D"
	CaseBypass        Case = "BYPASS"
	CaseFailed        Case = "FAILED"
	CaseDatabaseError Case = "DATABASE_ERROR"
)

// Status is RequestState.sql_status (spec §3).
type Status string

const (
	StatusGold    Status = "GOLD"
	StatusSilver  Status = "SILVER"
	StatusFailed  Status = "FAILED"
	StatusUnknown Status = "UNKNOWN"
)

// Decision is Selector's verdict for one P6 pass.
type Decision struct {
	Case          Case
	Status        Status
	SelectedIndex int // -1 when nothing was selected
	Escalate      bool
	Reasoning     string
}

// Params bundles one Decide call's inputs.
type Params struct {
	Question              string
	Candidates            []sqltest.SQLCandidate
	Tests                 []sqltest.Test
	Matrix                evaluator.Matrix
	Threshold             float64
	EscalationAttempts    int
	MaxEscalationAttempts int
}

// Selector picks the winning candidate or signals escalation.
type Selector struct {
	selectorAgent   *agentpkg.AgentAdapter[int]
	supervisorAgent *agentpkg.AgentAdapter[bool]
}

// NewSelector builds a Selector bound to its two sub-agents (spec §4.9's
// selector_agent for Case B, supervisor_agent for Case C).
func NewSelector(selectorAgent *agentpkg.AgentAdapter[int], supervisorAgent *agentpkg.AgentAdapter[bool]) *Selector {
	return &Selector{selectorAgent: selectorAgent, supervisorAgent: supervisorAgent}
}

// Decide runs the four-case policy. Candidates whose EVIDENCE_CRITICAL
// tests fail are excluded from the "perfect" set Case A/B draw from (spec
// §8's S5 scenario: such a candidate must not be selected via A or B even
// though its overall pass_rate is 1.0) but remain eligible for Case C/D,
// since spec §3's GOLD invariant ties evidence-critical gating to GOLD
// specifically.
func (s *Selector) Decide(ctx context.Context, p Params) (Decision, error) {
	n := len(p.Matrix.PassRate)
	if n == 0 {
		return Decision{Case: CaseD, Status: StatusFailed, SelectedIndex: -1}, nil
	}

	var goldEligible []int
	var anyPerfect bool
	for i, rate := range p.Matrix.PassRate {
		if rate < 1.0 {
			continue
		}
		anyPerfect = true
		if p.Matrix.EvidenceCriticalPassed(i, p.Tests) {
			goldEligible = append(goldEligible, i)
		}
	}

	switch len(goldEligible) {
	case 1:
		return Decision{Case: CaseA, Status: StatusGold, SelectedIndex: goldEligible[0]}, nil
	default:
		if len(goldEligible) >= 2 {
			return s.decideCaseB(ctx, p, goldEligible)
		}
	}

	_ = anyPerfect // a perfect-but-evidence-failing candidate still falls through to C/D below
	return s.decideBorderline(ctx, p)
}

func (s *Selector) decideCaseB(ctx context.Context, p Params, tied []int) (Decision, error) {
	if s.selectorAgent == nil {
		return Decision{}, fmt.Errorf("selector: case B requires a selector_agent")
	}

	chosen, err := s.selectorAgent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{"Question": p.Question, "TiedCandidateIndices": tied},
		Vars: map[string]any{"Question": p.Question},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("selector: case B tie-break: %w", err)
	}

	valid := false
	for _, i := range tied {
		if i == chosen {
			valid = true
			break
		}
	}
	if !valid {
		chosen = tieBreak(tied, p.Candidates)
	}

	return Decision{Case: CaseB, Status: StatusGold, SelectedIndex: chosen}, nil
}

func (s *Selector) decideBorderline(ctx context.Context, p Params) (Decision, error) {
	top := -1
	for i, rate := range p.Matrix.PassRate {
		if top == -1 || rate > p.Matrix.PassRate[top] {
			top = i
		}
	}

	if p.Matrix.PassRate[top] < p.Threshold {
		if p.EscalationAttempts < p.MaxEscalationAttempts {
			return Decision{Case: CaseD, Status: StatusUnknown, SelectedIndex: -1, Escalate: true}, nil
		}
		return Decision{Case: CaseD, Status: StatusFailed, SelectedIndex: -1}, nil
	}

	return s.resolveCaseC(ctx, p, top, p.Matrix.PassRate[top])
}

func (s *Selector) resolveCaseC(ctx context.Context, p Params, candidateIndex int, passRate float64) (Decision, error) {
	if s.supervisorAgent == nil {
		return Decision{}, fmt.Errorf("selector: case C requires a supervisor_agent")
	}

	approved, err := s.supervisorAgent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{
			"Question":  p.Question,
			"SQL":       p.Candidates[candidateIndex].Normalized,
			"PassRate":  passRate,
			"Threshold": p.Threshold,
		},
		Vars: map[string]any{"Question": p.Question},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("selector: case C supervisor approval: %w", err)
	}

	if approved {
		return Decision{Case: CaseC, Status: StatusSilver, SelectedIndex: candidateIndex}, nil
	}
	if p.EscalationAttempts < p.MaxEscalationAttempts {
		return Decision{Case: CaseC, Status: StatusUnknown, SelectedIndex: -1, Escalate: true}, nil
	}
	return Decision{Case: CaseC, Status: StatusFailed, SelectedIndex: -1}, nil
}

// Reconfirm is the belt-and-suspenders pass (spec §4.9): after a Case A/B
// GOLD selection, the caller re-evaluates the candidate and passes in its
// confirmation pass_rate. If that pass_rate drops below threshold, the decision degrades to
// Case C and must be resolved by the supervisor before it can stand.
func (s *Selector) Reconfirm(ctx context.Context, p Params, decision Decision, confirmedPassRate float64) (Decision, error) {
	if decision.Status != StatusGold {
		return decision, nil
	}
	if confirmedPassRate >= p.Threshold {
		return decision, nil
	}
	return s.resolveCaseC(ctx, p, decision.SelectedIndex, confirmedPassRate)
}

// tieBreak prefers lower candidate complexity, then earlier generation
// order (spec §4.9).
func tieBreak(indices []int, candidates []sqltest.SQLCandidate) int {
	best := indices[0]
	for _, i := range indices[1:] {
		if candidates[i].Complexity < candidates[best].Complexity {
			best = i
			continue
		}
		if candidates[i].Complexity == candidates[best].Complexity &&
			candidates[i].GenerationIndex < candidates[best].GenerationIndex {
			best = i
		}
	}
	return best
}
