// Package pipeline implements PipelineController (spec §4.1): the
// single-request state machine that drives phases P0..P7, dispatches every
// other component, and emits the wire frame stream.
package pipeline

import (
	"time"

	"github.com/mptyl/thoth-sqlcore/internal/contextretriever"
	"github.com/mptyl/thoth-sqlcore/internal/evaluator"
	"github.com/mptyl/thoth-sqlcore/internal/selector"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/wire"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// Request is the immutable input to one pipeline run (spec §3).
type Request struct {
	Question           string
	WorkspaceID        int64
	SessionID          string
	FunctionalityLevel workspace.FunctionalityLevel
	Flags              workspace.Flags
	Username            string
}

// PhaseTiming records one phase's start/end/duration (spec §3's
// `execution` struct).
type PhaseTiming struct {
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

// Execution is RequestState.execution: per-phase timings plus the named
// sub-timings spec §3 calls out explicitly.
type Execution struct {
	Phases            map[string]PhaseTiming
	TestReduction     PhaseTiming
	Evaluation        PhaseTiming
	BeltAndSuspenders PhaseTiming
}

// RequestState is the single mutable record PipelineController owns for
// the lifetime of one request (spec §3). Fan-out workers never touch it
// directly: they return immutable results the controller merges in.
type RequestState struct {
	Request Request

	QuestionLanguage   string
	DatabaseLanguage   string
	TranslatedQuestion string

	Keywords []string

	Evidence     []vdbmanager.Hit
	GoldExamples []vdbmanager.QSQLExample
	LSHColumns   []contextretriever.ColumnRef

	FullMSchema        string
	ReducedMSchema     string
	UsedMSchema        string
	SchemaLinkStrategy contextretriever.SchemaLinkStrategy

	FilteredTests []sqltest.Test

	GeneratedSQLs    []sqltest.SQLCandidate
	EvaluationMatrix evaluator.Matrix

	SelectedSQL *sqltest.SQLCandidate
	LastSQL     *sqltest.SQLCandidate

	EvaluationCase selector.Case
	SQLStatus      selector.Status

	Execution Execution

	EscalationAttempts    int
	MaxEscalationAttempts int

	Cancelled bool

	// Failure is set by any phase that terminates the pipeline early; P7
	// reads it to emit the terminal CRITICAL_ERROR frame.
	Failure *wire.ErrorPayload
}

// NewRequestState builds the P0 RequestState for req.
func NewRequestState(req Request, questionLanguage, databaseLanguage string, maxEscalationAttempts int) *RequestState {
	return &RequestState{
		Request:               req,
		QuestionLanguage:      questionLanguage,
		DatabaseLanguage:      databaseLanguage,
		SQLStatus:             selector.StatusUnknown,
		MaxEscalationAttempts: maxEscalationAttempts,
		Execution:             Execution{Phases: make(map[string]PhaseTiming, 7)},
	}
}

// beginPhase returns the current time as a phase's start marker.
func (s *RequestState) beginPhase() time.Time { return time.Now() }

// endPhase records name's timing, the only mutator of Execution.
func (s *RequestState) endPhase(name string, start time.Time) {
	now := time.Now()
	s.Execution.Phases[name] = PhaseTiming{StartedAt: start, EndedAt: now, Duration: now.Sub(start)}
}
