package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/explainer"
	"github.com/mptyl/thoth-sqlcore/internal/feedback"
	"github.com/mptyl/thoth-sqlcore/internal/httpapi"
	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/sessioncache"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

func agentConfig(kind workspace.AgentKind, model string) workspace.AgentConfig {
	return workspace.AgentConfig{
		Name: string(kind), Kind: kind,
		Primary: workspace.ModelHandle{Provider: "p", ModelID: model}, TemplateKey: string(kind),
	}
}

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()

	ws := &workspace.Workspace{
		ID: 1, Dialect: workspace.DialectSQLite, Language: "en",
		EvaluationThreshold: 0.9, NumberOfSQLsToGenerate: 1, NumberOfTestsToGenerate: 1,
		AgentPool: workspace.AgentPoolConfig{
			Validator:      agentConfig(workspace.KindValidator, "val-m"),
			KeywordExtract: agentConfig(workspace.KindKeywordExtract, "kw-m"),
			TestGenerators: []workspace.AgentConfig{agentConfig(workspace.KindTestGen, "tg-m")},
			SQLGenerators: map[workspace.FunctionalityLevel][]workspace.AgentConfig{
				workspace.LevelBasic: {agentConfig(workspace.KindSQLBasic, "sql-m")},
			},
			Selector:   agentConfig(workspace.KindSelectorAgent, "sel-m"),
			Supervisor: agentConfig(workspace.KindSupervisorAgent, "sup-m"),
			Explainer:  agentConfig(workspace.KindExplainer, "exp-m"),
		},
	}
	ws.Normalize()
	loader := workspace.NewStaticLoader(ws)

	db := dbmanager.NewMockManager(workspace.DialectSQLite)
	db.Responses["select 1"] = dbmanager.MockResponse{Rows: &dbmanager.Rows{
		Columns: []string{"n"}, Records: [][]any{{1}, {2}, {3}},
	}}

	registry := modelprovider.NewRegistry()
	provider := modelprovider.NewMockProvider()
	provider.Responses["val-m"] = []modelprovider.CompletionResult{{Text: "true"}}
	provider.Responses["kw-m"] = []modelprovider.CompletionResult{{Text: `["orders"]`}}
	provider.Responses["tg-m"] = []modelprovider.CompletionResult{{Text: `[{"text":"t1","expected_behavior":"select 1","evidence_critical":false}]`}}
	provider.Responses["sql-m"] = []modelprovider.CompletionResult{{Text: "select 1"}}
	provider.Responses["exp-m"] = []modelprovider.CompletionResult{{Text: "this counts every order."}}
	registry.Register("p", provider)

	dbFactory := func(context.Context, *workspace.Workspace) (dbmanager.Manager, error) { return db, nil }
	vdbFactory := func(context.Context, *workspace.Workspace) (vdbmanager.Manager, error) {
		return vdbmanager.NewMockManager(), nil
	}

	cache := sessioncache.New(loader, registry, dbFactory, vdbFactory, 0, time.Minute, zap.NewNop().Sugar())

	templates, err := sessioncache.DefaultTemplates()
	require.NoError(t, err)
	exp := explainer.New(agentpkg.NewAgentAdapter[string](
		agentConfig(workspace.KindExplainer, "exp-m"), registry, templates, explainer.IdentityParser, zap.NewNop().Sugar(),
	))

	sink := feedback.New(vdbmanager.NewMockManager())

	return httpapi.NewServer(cache, loader, dbFactory, vdbFactory, sink, exp, zap.NewNop().Sugar())
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	newTestServer(t).Register(engine)
	return engine
}

func TestGenerateSQLStreamsWireFrames(t *testing.T) {
	engine := newRouter(t)

	body := `{"question":"how many orders","workspace_id":1,"session_id":"s1"}`
	req := httptest.NewRequest(http.MethodPost, "/generate-sql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	scanner := bufio.NewScanner(rec.Body)
	var sawReady, sawResult bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "SQL_READY:") {
			sawReady = true
		}
		if strings.HasPrefix(line, "RESULT:") {
			sawResult = true
		}
	}
	require.True(t, sawReady, "expected an SQL_READY frame in the stream, got:\n%s", rec.Body.String())
	require.True(t, sawResult, "expected a RESULT frame in the stream, got:\n%s", rec.Body.String())
}

func TestGenerateSQLRejectsMissingQuestion(t *testing.T) {
	engine := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/generate-sql", strings.NewReader(`{"workspace_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExplainSQLReturnsExplanation(t *testing.T) {
	engine := newRouter(t)

	body := `{"workspace_id":1,"question":"how many orders","generated_sql":"SELECT COUNT(*) FROM orders"}`
	req := httptest.NewRequest(http.MethodPost, "/explain-sql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Explanation string `json:"explanation"`
		Language    string `json:"language"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "en", resp.Language)
	require.NotEmpty(t, resp.Explanation)
}

func TestExecuteQueryPaginatesRows(t *testing.T) {
	engine := newRouter(t)

	body := `{"workspace_id":1,"sql":"select 1","page":1,"page_size":2}`
	req := httptest.NewRequest(http.MethodPost, "/execute-query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rows       [][]any  `json:"rows"`
		Columns    []string `json:"columns"`
		Page       int      `json:"page"`
		TotalRows  int      `json:"total_rows"`
		TotalPages int      `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 2)
	require.Equal(t, 3, resp.TotalRows)
	require.Equal(t, 2, resp.TotalPages)
	require.Equal(t, []string{"n"}, resp.Columns)
}

func TestExecuteQueryRejectsUnknownWorkspace(t *testing.T) {
	engine := newRouter(t)

	body := `{"workspace_id":999,"sql":"select 1"}`
	req := httptest.NewRequest(http.MethodPost, "/execute-query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveSQLFeedbackPersists(t *testing.T) {
	engine := newRouter(t)

	body := `{"workspace_id":1,"question":"how many orders","sql":"SELECT COUNT(*) FROM orders"}`
	req := httptest.NewRequest(http.MethodPost, "/save-sql-feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.ID)
}

func TestExecuteQueryIsRateLimited(t *testing.T) {
	engine := newRouter(t)

	body := `{"workspace_id":1,"sql":"select 1"}`
	var lastCode int
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/execute-query", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		lastCode = rec.Code
		if lastCode == http.StatusTooManyRequests {
			break
		}
	}
	require.Equal(t, http.StatusTooManyRequests, lastCode, "burst of 20 same-IP requests must eventually be throttled")
}

func TestHealthReportsOK(t *testing.T) {
	engine := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
