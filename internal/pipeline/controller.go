package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/contextretriever"
	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/evaluator"
	"github.com/mptyl/thoth-sqlcore/internal/relevance"
	"github.com/mptyl/thoth-sqlcore/internal/selector"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/testreducer"
	"github.com/mptyl/thoth-sqlcore/internal/validator"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/wire"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
	"github.com/mptyl/thoth-sqlcore/pkg/stream"
)

// Deps bundles everything one Controller needs to drive requests for a
// single workspace/session pairing. SessionCache builds one Deps per
// (session_id, workspace_id, workspace_version) and reuses it across
// requests.
type Deps struct {
	Workspace *workspace.Workspace
	DB        dbmanager.Manager
	VDB       vdbmanager.Manager
	Schema    contextretriever.Schema

	Validator        ValidatorAgent
	Translator       TranslatorAgent
	KeywordExtractor KeywordAgent
	TestGenerators   []TestGenAgent
	SQLGenerators    map[workspace.FunctionalityLevel][]SQLGenAgent
	Explainer        ExplainerAgent

	ContextRetriever *contextretriever.ContextRetriever
	OutputValidator  *validator.SqlOutputValidator
	Evaluator        *evaluator.Evaluator
	Complexity       *evaluator.ComplexityScorer
	Selector         *selector.Selector

	Logger *zap.SugaredLogger

	Deadline       time.Duration
	EvidenceK      int
	ExampleK       int
	MaxEscalations int

	// DebugTimings, when set, appends a phase_timings THOTHLOG frame
	// carrying state.Execution as the final log line before the
	// terminal frame.
	DebugTimings bool

	// Limits, when set, supplies the spec §6 tunables (DEADLINE_MS,
	// MAX_ESCALATION_ATTEMPTS, RELEVANCE_W_BM25/_STRUCT) read live from
	// config.Store on every request, so a SIGHUP reload takes effect on
	// the next request rather than only at Controller construction. A
	// nil Limits falls back to the static Deadline/MaxEscalations above.
	Limits DynamicLimits
}

// DynamicLimits is the subset of config.Store's live, SIGHUP-reloadable
// tunables PipelineController reads once per request (spec §6).
type DynamicLimits interface {
	Deadline() time.Duration
	MaxEscalationAttempts() int
	RelevanceWeights() (bm25, structural float64)
}

// Controller is PipelineController (spec §4.1).
type Controller struct {
	deps Deps
}

// NewController builds a Controller over deps, filling in the spec-mandated
// defaults deps leaves zero.
func NewController(deps Deps) *Controller {
	if deps.Deadline <= 0 {
		deps.Deadline = 120 * time.Second
	}
	if deps.EvidenceK <= 0 {
		deps.EvidenceK = 5
	}
	if deps.ExampleK <= 0 {
		deps.ExampleK = 3
	}
	if deps.MaxEscalations <= 0 {
		deps.MaxEscalations = workspace.DefaultMaxEscalationAttempts
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Controller{deps: deps}
}

// Handle runs req through phases P0..P7 and returns a lazy, finite,
// non-restartable frame stream (spec §4.1).
func (c *Controller) Handle(ctx context.Context, req Request) stream.Reader[wire.Frame] {
	out := stream.New[wire.Frame](32)
	go func() {
		defer func() {
			_ = out.Close()
		}()
		c.run(ctx, req, out)
	}()
	return out
}

func (c *Controller) run(ctx context.Context, req Request, out stream.Stream[wire.Frame]) {
	deadline, maxEscalations := c.deps.Deadline, c.deps.MaxEscalations
	if c.deps.Limits != nil {
		if d := c.deps.Limits.Deadline(); d > 0 {
			deadline = d
		}
		if m := c.deps.Limits.MaxEscalationAttempts(); m > 0 {
			maxEscalations = m
		}
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	state := NewRequestState(req, c.deps.Workspace.Language, c.deps.Workspace.Language, maxEscalations)

	steps := []struct {
		name string
		fn   func(context.Context, *RequestState, stream.Writer[wire.Frame]) bool
	}{
		{"P1", c.p1Validate},
		{"P2", c.p2Keywords},
		{"P3", c.p3Context},
		{"P4", c.p4PrecomputeTests},
	}

	for _, step := range steps {
		if c.cancelled(ctx) {
			c.finishCancelled(ctx, state, out)
			return
		}
		c.emit(ctx, out, wire.Log("phase "+step.name+" starting"))
		if !step.fn(ctx, state, out) {
			c.finalize(ctx, state, out)
			return
		}
	}

	level := req.FunctionalityLevel
	if level == "" {
		level = workspace.LevelBasic
	}

	for {
		if c.cancelled(ctx) {
			c.finishCancelled(ctx, state, out)
			return
		}

		ok, sawDatabaseError := c.p5Generate(ctx, state, out, level)
		if !ok {
			next, hasNext := level.Next()
			if hasNext && state.EscalationAttempts < state.MaxEscalationAttempts {
				state.EscalationAttempts++
				level = next
				c.emit(ctx, out, wire.Log("escalating to "+string(level)))
				continue
			}
			if sawDatabaseError {
				state.EvaluationCase = selector.CaseDatabaseError
				state.Failure = &wire.ErrorPayload{
					Type: "database_error", Component: "SqlOutputValidator",
					Message: "every generated candidate failed its DB probe",
					Impact:  "no executable SQL produced", Action: "check database connectivity",
				}
			} else {
				state.Failure = &wire.ErrorPayload{
					Type: "no_sql_generated", Component: "PipelineController",
					Message: "no SQL candidate survived generation and escalation",
					Impact:  "no SQL produced", Action: "rephrase the question or adjust the workspace",
				}
			}
			c.finalize(ctx, state, out)
			return
		}

		if c.cancelled(ctx) {
			c.finishCancelled(ctx, state, out)
			return
		}

		decision, ok := c.p6EvaluateAndSelect(ctx, state, out)
		if !ok {
			c.finalize(ctx, state, out)
			return
		}

		if decision.Escalate {
			next, hasNext := level.Next()
			if hasNext && state.EscalationAttempts < state.MaxEscalationAttempts {
				state.EscalationAttempts++
				level = next
				c.emit(ctx, out, wire.Log("escalating to "+string(level)))
				continue
			}
			state.EvaluationCase = decision.Case
			state.SQLStatus = selector.StatusFailed
			state.Failure = &wire.ErrorPayload{
				Type: "evaluation_failed", Component: "Selector",
				Message: "selector could not reach a stable decision within the escalation budget",
				Impact:  "no SQL selected", Action: "retry or lower the evaluation threshold",
			}
			c.finalize(ctx, state, out)
			return
		}

		c.applyDecision(state, decision)
		decision = c.beltAndSuspenders(ctx, state, decision)
		c.applyDecision(state, decision)

		if decision.Escalate {
			next, hasNext := level.Next()
			if hasNext && state.EscalationAttempts < state.MaxEscalationAttempts {
				state.EscalationAttempts++
				level = next
				c.emit(ctx, out, wire.Log("belt-and-suspenders degraded the selection; escalating to "+string(level)))
				continue
			}
			state.Failure = &wire.ErrorPayload{
				Type: "evaluation_failed", Component: "Selector",
				Message: "belt-and-suspenders confirmation failed and no escalation budget remains",
				Impact:  "no SQL selected", Action: "retry or lower the evaluation threshold",
			}
		}
		break
	}

	c.finalize(ctx, state, out)
}

func (c *Controller) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (c *Controller) emit(ctx context.Context, out stream.Writer[wire.Frame], f wire.Frame) {
	if err := out.Write(ctx, f); err != nil {
		c.deps.Logger.Debugw("pipeline: frame write abandoned", "error", err)
	}
}

func (c *Controller) finishCancelled(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) {
	state.Cancelled = true
	// ctx is already done, and Write gives up on a done context, so the
	// trailer and the terminal CANCELLED frame go out on a detached one.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	c.emitTimings(ctx, state, out)
	c.emit(ctx, out, wire.Cancelled())
}

// emitTimings logs state.Execution as a phase_timings THOTHLOG line when
// Deps.DebugTimings is set. Marshal errors are logged and swallowed: a
// missing trailer frame must never mask the real terminal frame.
func (c *Controller) emitTimings(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) {
	if !c.deps.DebugTimings {
		return
	}
	body, err := json.Marshal(state.Execution)
	if err != nil {
		c.deps.Logger.Debugw("pipeline: failed to marshal phase timings", "error", err)
		return
	}
	c.emit(ctx, out, wire.Log("phase_timings="+string(body)))
}

// p1Validate is P1 (spec §4.1): validate the question, translate it if the
// question and database languages differ.
func (c *Controller) p1Validate(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) bool {
	start := state.beginPhase()
	defer func() { state.endPhase("P1", start) }()

	valid, err := c.deps.Validator.ValidateQuestion(ctx, state.Request.Question)
	if err != nil || !valid {
		state.Failure = &wire.ErrorPayload{
			Type: "invalid_question", Component: "ValidatorAgent",
			Message: errOrMessage(err, "question failed validation"),
			Impact:  "no SQL produced", Action: "rephrase the question",
		}
		return false
	}

	if state.QuestionLanguage == state.DatabaseLanguage {
		state.TranslatedQuestion = state.Request.Question
		return true
	}

	translated, terr := c.deps.Translator.Translate(ctx, state.Request.Question, state.DatabaseLanguage)
	if terr != nil {
		state.Failure = &wire.ErrorPayload{
			Type: "language_unsupported", Component: "TranslatorAgent",
			Message: terr.Error(), Impact: "no SQL produced", Action: "submit the question in " + state.DatabaseLanguage,
		}
		return false
	}
	state.TranslatedQuestion = translated
	return true
}

// p2Keywords is P2: extract ordered keywords. An empty result degrades to a
// warning rather than a fatal error, since WITHOUT_SCHEMA_LINK always
// remains an available fallback strategy in P3 regardless of keyword
// coverage (an interpretation of spec §7's "fatal if ... no schema-link
// fallback", recorded as a design decision in DESIGN.md).
func (c *Controller) p2Keywords(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) bool {
	start := state.beginPhase()
	defer func() { state.endPhase("P2", start) }()

	keywords, err := c.deps.KeywordExtractor.ExtractKeywords(ctx, state.TranslatedQuestion)
	if err != nil {
		state.Failure = &wire.ErrorPayload{
			Type: "keyword_extraction_failed", Component: "KeywordAgent",
			Message: err.Error(), Impact: "schema linking may be unavailable", Action: "retry the request",
		}
		return false
	}
	if len(keywords) == 0 {
		c.emit(ctx, out, wire.Warning("no keywords extracted; continuing without schema link"))
	}
	state.Keywords = keywords
	return true
}

// p3Context is P3: retrieve evidence/exemplars, run LSH, build mschema, and
// decide the schema-link strategy.
func (c *Controller) p3Context(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) bool {
	start := state.beginPhase()
	defer func() { state.endPhase("P3", start) }()

	filters := map[string]string{"workspace_id": strconv.FormatInt(state.Request.WorkspaceID, 10)}
	result, err := c.deps.ContextRetriever.Retrieve(
		ctx, state.TranslatedQuestion, state.Keywords, state.Request.Flags,
		c.deps.Schema, c.deps.EvidenceK, c.deps.ExampleK, filters,
	)
	if err != nil {
		state.Failure = &wire.ErrorPayload{
			Type: "vdb_unavailable", Component: "ContextRetriever",
			Message: err.Error(), Impact: "no retrieval context available", Action: "check the vector store connection",
		}
		return false
	}

	state.Evidence = result.Evidence
	state.GoldExamples = result.GoldExamples
	state.LSHColumns = result.LSHColumns
	state.FullMSchema = result.FullMSchema
	state.ReducedMSchema = result.ReducedMSchema
	state.UsedMSchema = result.UsedMSchema
	state.SchemaLinkStrategy = result.Strategy

	if result.Strategy == contextretriever.WithoutSchemaLink && state.Request.Flags.UseSchema {
		c.emit(ctx, out, wire.Warning("no schema elements found; proceeding without schema link"))
	}
	return true
}

// p4PrecomputeTests is P4: fan out test generators across a 0.5→1.0
// temperature ramp, dedup, reduce, then classify with RelevanceGuard.
func (c *Controller) p4PrecomputeTests(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) bool {
	start := state.beginPhase()
	defer func() { state.endPhase("P4", start) }()

	if len(c.deps.TestGenerators) == 0 {
		state.Failure = &wire.ErrorPayload{
			Type: "keyword_extraction_failed", Component: "TestGenAgent",
			Message: "no test generators configured", Impact: "no tests available", Action: "configure at least one test_gen agent",
		}
		return false
	}

	n := c.deps.Workspace.NumberOfTestsToGenerate
	temps := agentpkg.TestTemperatures(n)
	genDeps := TestGenDeps{
		Question: state.TranslatedQuestion, MSchema: state.UsedMSchema,
		Evidence: state.Evidence, Dialect: c.deps.Workspace.Dialect,
	}

	results, err := agentpkg.RunFanOut(ctx, len(temps), temps, func(ctx context.Context, idx int, temperature float64) ([]sqltest.Test, error) {
		gen := c.deps.TestGenerators[idx%len(c.deps.TestGenerators)]
		return gen.GenerateTests(ctx, temperature, genDeps)
	})
	if err != nil {
		state.Failure = &wire.ErrorPayload{
			Type: "keyword_extraction_failed", Component: "TestGenAgent",
			Message: err.Error(), Impact: "no tests available to evaluate candidates", Action: "retry the request",
		}
		return false
	}

	var tests []sqltest.Test
	for _, r := range results {
		if r.Err == nil {
			tests = append(tests, r.Value...)
		}
	}
	tests = testreducer.ExactDedup(tests)

	reduceStart := time.Now()
	if len(tests) > testreducer.NearDuplicateCountThreshold && len(c.deps.TestGenerators) > 1 {
		tests = testreducer.Reduce(tests, len(c.deps.TestGenerators))
	}
	state.Execution.TestReduction = PhaseTiming{StartedAt: reduceStart, EndedAt: time.Now(), Duration: time.Since(reduceStart)}

	var weightBM25, weightStruct float64
	if c.deps.Limits != nil {
		weightBM25, weightStruct = c.deps.Limits.RelevanceWeights()
	}

	corpus := append([]string{state.TranslatedQuestion}, evidenceTexts(state.Evidence)...)
	guard := relevance.NewGuard(corpus, schemaIdentifiers(c.deps.Schema), state.QuestionLanguage, state.DatabaseLanguage, weightBM25, weightStruct)
	state.FilteredTests = guard.ClassifyAll(tests)
	return true
}

// p5Generate is P5: dispatch the level's SQL generators, validate every
// candidate, and keep only those that probe OK. It returns ok=false when no
// candidate probes clean; sawDatabaseError reports whether at least one
// candidate failed specifically at the probe step (vs. never generating).
func (c *Controller) p5Generate(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame], level workspace.FunctionalityLevel) (ok bool, sawDatabaseError bool) {
	start := state.beginPhase()
	defer func() { state.endPhase("P5", start) }()

	generators := c.deps.SQLGenerators[level]
	if len(generators) == 0 {
		return false, false
	}

	n := c.deps.Workspace.NumberOfSQLsToGenerate
	temps := agentpkg.SQLTemperatures(n)
	genDeps := SQLGenDeps{
		Question: state.TranslatedQuestion, MSchema: state.UsedMSchema,
		Evidence: state.Evidence, Examples: state.GoldExamples,
		Dialect: c.deps.Workspace.Dialect, Language: state.DatabaseLanguage,
	}

	results, err := agentpkg.RunFanOut(ctx, len(temps), temps, func(ctx context.Context, idx int, temperature float64) (string, error) {
		gen := generators[idx%len(generators)]
		return gen.GenerateSQL(ctx, temperature, genDeps)
	})
	if err != nil {
		return false, false
	}

	var candidates []sqltest.SQLCandidate
	generated := false
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		generated = true
		validated := c.deps.OutputValidator.Validate(ctx, r.Value)
		if !validated.ProbeOK {
			sawDatabaseError = true
			continue
		}
		candidates = append(candidates, sqltest.SQLCandidate{
			Raw: validated.Raw, Normalized: validated.Normalized,
			ProbeOK: validated.ProbeOK, ProbeError: validated.ProbeError,
			GeneratorLevel:  string(level),
			GenerationIndex: i,
			Complexity:      c.deps.Complexity.Score(validated.Normalized),
		})
	}
	if !generated {
		sawDatabaseError = false
	}

	state.GeneratedSQLs = candidates
	return len(candidates) > 0, sawDatabaseError
}

// p6EvaluateAndSelect is P6: run the evaluation matrix then the Selector.
func (c *Controller) p6EvaluateAndSelect(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) (selector.Decision, bool) {
	start := time.Now()
	matrix, err := c.deps.Evaluator.Run(ctx, state.GeneratedSQLs, state.FilteredTests)
	state.Execution.Evaluation = PhaseTiming{StartedAt: start, EndedAt: time.Now(), Duration: time.Since(start)}
	if err != nil {
		state.EvaluationCase = selector.CaseDatabaseError
		state.Failure = &wire.ErrorPayload{
			Type: "database_error", Component: "Evaluator",
			Message: err.Error(), Impact: "no candidate could be scored", Action: "check database connectivity",
		}
		return selector.Decision{}, false
	}
	state.EvaluationMatrix = matrix

	decision, derr := c.deps.Selector.Decide(ctx, selector.Params{
		Question:              state.TranslatedQuestion,
		Candidates:            state.GeneratedSQLs,
		Tests:                 state.FilteredTests,
		Matrix:                matrix,
		Threshold:             c.deps.Workspace.EvaluationThreshold,
		EscalationAttempts:    state.EscalationAttempts,
		MaxEscalationAttempts: state.MaxEscalationAttempts,
	})
	if derr != nil {
		state.Failure = &wire.ErrorPayload{
			Type: "evaluation_failed", Component: "Selector",
			Message: derr.Error(), Impact: "no candidate could be selected", Action: "retry the request",
		}
		return selector.Decision{}, false
	}
	return decision, true
}

func (c *Controller) applyDecision(state *RequestState, decision selector.Decision) {
	state.EvaluationCase = decision.Case
	state.SQLStatus = decision.Status
	if decision.SelectedIndex >= 0 && decision.SelectedIndex < len(state.GeneratedSQLs) {
		selected := state.GeneratedSQLs[decision.SelectedIndex]
		state.SelectedSQL = &selected
		state.LastSQL = &selected
		return
	}
	state.SelectedSQL = nil
}

// beltAndSuspenders is the optional confirmation pass (spec §4.9): after a
// GOLD selection, re-run Evaluator over the selected candidate alone; a
// pass_rate drop below threshold degrades the decision to Case C.
func (c *Controller) beltAndSuspenders(ctx context.Context, state *RequestState, decision selector.Decision) selector.Decision {
	if !state.Request.Flags.BeltAndSuspenders || decision.Status != selector.StatusGold {
		return decision
	}
	start := time.Now()
	confirmation, err := c.deps.Evaluator.Run(ctx, []sqltest.SQLCandidate{state.GeneratedSQLs[decision.SelectedIndex]}, state.FilteredTests)
	state.Execution.BeltAndSuspenders = PhaseTiming{StartedAt: start, EndedAt: time.Now(), Duration: time.Since(start)}
	if err != nil || len(confirmation.PassRate) == 0 {
		return decision
	}

	degraded, derr := c.deps.Selector.Reconfirm(ctx, selector.Params{
		Question:              state.TranslatedQuestion,
		Candidates:            state.GeneratedSQLs,
		Tests:                 state.FilteredTests,
		Matrix:                state.EvaluationMatrix,
		Threshold:             c.deps.Workspace.EvaluationThreshold,
		EscalationAttempts:    state.EscalationAttempts,
		MaxEscalationAttempts: state.MaxEscalationAttempts,
	}, decision, confirmation.PassRate[0])
	if derr != nil {
		return decision
	}
	return degraded
}

// finalize is P7: emit the terminal frames for either a successful
// selection or the recorded failure.
func (c *Controller) finalize(ctx context.Context, state *RequestState, out stream.Writer[wire.Frame]) {
	if state.Failure != nil {
		state.Failure.Component = orDefault(state.Failure.Component, "PipelineController")
		c.emitTimings(ctx, state, out)
		c.emit(ctx, out, wire.CriticalError(*state.Failure))
		return
	}

	if state.SelectedSQL == nil {
		c.emitTimings(ctx, state, out)
		c.emit(ctx, out, wire.CriticalError(wire.ErrorPayload{
			Type: "evaluation_failed", Component: "PipelineController",
			Message: "pipeline completed without selecting a candidate",
			Impact:  "no SQL produced", Action: "retry the request",
		}))
		return
	}

	c.emit(ctx, out, wire.SQLFormatted(state.SelectedSQL.Normalized))
	c.emit(ctx, out, wire.SQLReady(wire.SQLReadyPayload{
		SQL: state.SelectedSQL.Normalized, WorkspaceID: state.Request.WorkspaceID,
		SQLStatus: string(state.SQLStatus),
	}))

	if state.Request.Flags.ExplainGeneratedSQL && c.deps.Explainer != nil {
		explanation, err := c.deps.Explainer.Explain(ctx, ExplainDeps{
			Question: state.TranslatedQuestion, SQL: state.SelectedSQL.Normalized,
			MSchema: state.UsedMSchema, Evidence: state.Evidence, Language: state.QuestionLanguage,
		})
		if err != nil {
			c.emit(ctx, out, wire.Warning("explanation unavailable: "+err.Error()))
		} else {
			c.emit(ctx, out, wire.SQLExplanation(wire.SQLExplanationPayload{Text: explanation, Language: state.QuestionLanguage}))
		}
	}

	c.emitTimings(ctx, state, out)
	c.emit(ctx, out, wire.Result(wire.ResultPayload{Success: true, SelectedSQL: state.SelectedSQL.Normalized}))
}

func errOrMessage(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func evidenceTexts(hits []vdbmanager.Hit) []string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts
}

func schemaIdentifiers(schema contextretriever.Schema) []string {
	var ids []string
	for _, t := range schema.Tables {
		ids = append(ids, t.Name)
		for _, col := range t.Columns {
			ids = append(ids, col.Name)
		}
	}
	return ids
}
