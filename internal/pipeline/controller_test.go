package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/contextretriever"
	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/evaluator"
	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/pipeline"
	"github.com/mptyl/thoth-sqlcore/internal/selector"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/validator"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/wire"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

type fakeValidator struct{ valid bool }

func (f fakeValidator) ValidateQuestion(context.Context, string) (bool, error) { return f.valid, nil }

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, question, _ string) (string, error) {
	return question, nil
}

type fakeKeywords struct{ words []string }

func (f fakeKeywords) ExtractKeywords(context.Context, string) ([]string, error) { return f.words, nil }

type fakeTestGen struct{ tests []sqltest.Test }

func (f fakeTestGen) GenerateTests(context.Context, float64, pipeline.TestGenDeps) ([]sqltest.Test, error) {
	return f.tests, nil
}

type fakeSQLGen struct{ sql string }

func (f fakeSQLGen) GenerateSQL(context.Context, float64, pipeline.SQLGenDeps) (string, error) {
	return f.sql, nil
}

func drain(t *testing.T, reader interface {
	Read(ctx context.Context) (wire.Frame, error)
}) []wire.Frame {
	t.Helper()
	var frames []wire.Frame
	ctx := context.Background()
	for {
		f, err := reader.Read(ctx)
		if err != nil {
			return frames
		}
		frames = append(frames, f)
	}
}

func buildDeps(t *testing.T, dialect workspace.Dialect, passingSQL string) pipeline.Deps {
	t.Helper()

	ws := &workspace.Workspace{
		ID: 1, Dialect: dialect, Language: "en",
		EvaluationThreshold: 0.9, NumberOfSQLsToGenerate: 1, NumberOfTestsToGenerate: 1,
	}
	ws.Normalize()

	db := dbmanager.NewMockManager(dialect)
	db.Responses["select 1"] = dbmanager.MockResponse{Rows: &dbmanager.Rows{Records: [][]any{{true}}}}

	outputValidator := validator.NewSqlOutputValidator(dialect, db, time.Second)
	complexity, err := evaluator.NewComplexityScorer()
	require.NoError(t, err)

	loader, err := agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		"supervisor_agent": {SystemTemplate: "approve?", UserTemplate: "{{.Question}}"},
	})
	require.NoError(t, err)
	registry := modelprovider.NewRegistry()
	approve := modelprovider.NewMockProvider()
	approve.Responses["m1"] = []modelprovider.CompletionResult{{Text: "true"}}
	registry.Register("p", approve)
	supervisor := agentpkg.NewAgentAdapter[bool](
		workspace.AgentConfig{Name: "supervisor_agent", Primary: workspace.ModelHandle{Provider: "p", ModelID: "m1"}, TemplateKey: "supervisor_agent"},
		registry, loader, func(raw string) (bool, error) { return raw == "true", nil }, zap.NewNop().Sugar(),
	)

	return pipeline.Deps{
		Workspace: ws,
		DB:        db,
		VDB:       vdbmanager.NewMockManager(),
		Schema:    contextretriever.Schema{},

		Validator:        fakeValidator{valid: true},
		Translator:       fakeTranslator{},
		KeywordExtractor: fakeKeywords{words: []string{"orders"}},
		TestGenerators:   []pipeline.TestGenAgent{fakeTestGen{tests: []sqltest.Test{{Text: "t1", ExpectedBehavior: "select 1"}}}},
		SQLGenerators: map[workspace.FunctionalityLevel][]pipeline.SQLGenAgent{
			workspace.LevelBasic: {fakeSQLGen{sql: passingSQL}},
		},

		ContextRetriever: contextretriever.NewContextRetriever(vdbmanager.NewMockManager(), 0),
		OutputValidator:  outputValidator,
		Evaluator:        evaluator.NewEvaluator(db, 2, time.Second),
		Complexity:       complexity,
		Selector:         selector.NewSelector(nil, supervisor),

		Logger: zap.NewNop().Sugar(),
	}
}

func TestHandleProducesGoldSQLReadyFrame(t *testing.T) {
	deps := buildDeps(t, workspace.DialectSQLite, "select 1")
	controller := pipeline.NewController(deps)

	frames := drain(t, controller.Handle(context.Background(), pipeline.Request{
		Question: "how many orders", WorkspaceID: 1, FunctionalityLevel: workspace.LevelBasic,
		Flags: workspace.Flags{},
	}))

	var sawReady, sawResult bool
	for _, f := range frames {
		if f.Prefix == wire.PrefixSQLReady {
			sawReady = true
		}
		if f.Prefix == wire.PrefixResult {
			sawResult = true
		}
	}
	require.True(t, sawReady, "expected a SQL_READY frame, got %+v", frames)
	require.True(t, sawResult, "expected a RESULT frame, got %+v", frames)
}

func TestHandleInvalidQuestionEmitsCriticalError(t *testing.T) {
	deps := buildDeps(t, workspace.DialectSQLite, "select 1")
	deps.Validator = fakeValidator{valid: false}
	controller := pipeline.NewController(deps)

	frames := drain(t, controller.Handle(context.Background(), pipeline.Request{
		Question: "???", WorkspaceID: 1, FunctionalityLevel: workspace.LevelBasic,
	}))

	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.Equal(t, wire.PrefixCritical, last.Prefix)
	payload, ok := last.Payload.(wire.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, "invalid_question", payload.Type)
}

func TestHandleCancelledContextEmitsCancelled(t *testing.T) {
	deps := buildDeps(t, workspace.DialectSQLite, "select 1")
	controller := pipeline.NewController(deps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := drain(t, controller.Handle(ctx, pipeline.Request{
		Question: "how many orders", WorkspaceID: 1, FunctionalityLevel: workspace.LevelBasic,
	}))

	require.Len(t, frames, 1)
	require.Equal(t, wire.PrefixCancelled, frames[0].Prefix)
}
