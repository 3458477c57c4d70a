package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/pipeline"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
)

// validatorAdapter turns an AgentAdapter[bool] into pipeline.ValidatorAgent.
type validatorAdapter struct{ agent *agentpkg.AgentAdapter[bool] }

func (a validatorAdapter) ValidateQuestion(ctx context.Context, question string) (bool, error) {
	return a.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{"Question": question},
		Vars: map[string]any{"Question": question},
	})
}

// translatorAdapter turns an AgentAdapter[string] into pipeline.TranslatorAgent.
type translatorAdapter struct{ agent *agentpkg.AgentAdapter[string] }

func (a translatorAdapter) Translate(ctx context.Context, question, targetLanguage string) (string, error) {
	return a.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{"Question": question, "TargetLanguage": targetLanguage},
		Vars: map[string]any{"Question": question, "TargetLanguage": targetLanguage},
	})
}

// keywordAdapter turns an AgentAdapter[[]string] into pipeline.KeywordAgent.
type keywordAdapter struct{ agent *agentpkg.AgentAdapter[[]string] }

func (a keywordAdapter) ExtractKeywords(ctx context.Context, question string) ([]string, error) {
	return a.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{"Question": question},
		Vars: map[string]any{"Question": question},
	})
}

// testGenAdapter turns an AgentAdapter[[]sqltest.Test] into pipeline.TestGenAgent.
type testGenAdapter struct{ agent *agentpkg.AgentAdapter[[]sqltest.Test] }

func (a testGenAdapter) GenerateTests(ctx context.Context, temperature float64, deps pipeline.TestGenDeps) ([]sqltest.Test, error) {
	temp := temperature
	return a.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{
			"Question": deps.Question, "MSchema": deps.MSchema,
			"Evidence": hitTexts(deps.Evidence), "Dialect": string(deps.Dialect),
		},
		Vars:                map[string]any{"Question": deps.Question},
		TemperatureOverride: &temp,
	})
}

// sqlGenAdapter turns an AgentAdapter[string] into pipeline.SQLGenAgent.
type sqlGenAdapter struct{ agent *agentpkg.AgentAdapter[string] }

func (a sqlGenAdapter) GenerateSQL(ctx context.Context, temperature float64, deps pipeline.SQLGenDeps) (string, error) {
	temp := temperature
	return a.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{
			"Question": deps.Question, "MSchema": deps.MSchema,
			"Evidence": hitTexts(deps.Evidence), "Examples": deps.Examples,
			"Dialect": string(deps.Dialect), "Language": deps.Language,
		},
		Vars:                map[string]any{"Question": deps.Question},
		TemperatureOverride: &temp,
	})
}

// explainerAdapter turns an AgentAdapter[string] into pipeline.ExplainerAgent.
type explainerAdapter struct{ agent *agentpkg.AgentAdapter[string] }

func (a explainerAdapter) Explain(ctx context.Context, deps pipeline.ExplainDeps) (string, error) {
	return a.agent.Call(ctx, agentpkg.CallParams{
		Deps: map[string]any{
			"Question": deps.Question, "SQL": deps.SQL, "MSchema": deps.MSchema,
			"Evidence": hitTexts(deps.Evidence), "Language": deps.Language,
		},
		Vars: map[string]any{"Question": deps.Question, "SQL": deps.SQL},
	})
}

func hitTexts(hits []vdbmanager.Hit) []string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts
}

// identityParser passes raw model text through with only surrounding
// whitespace trimmed (sql generation, translation).
func identityParser(raw string) (string, error) { return strings.TrimSpace(raw), nil }

// boolParser accepts a bare "true"/"false" token or a {"valid": bool} JSON
// object, matching how a lightweight validator prompt would realistically
// be told to answer.
func boolParser(raw string) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	}
	var obj struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return false, fmt.Errorf("sessioncache: parse bool response: %w", err)
	}
	return obj.Valid, nil
}

// keywordsParser decodes a JSON array of keyword strings.
func keywordsParser(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return nil, fmt.Errorf("sessioncache: parse keywords response: %w", err)
	}
	return out, nil
}

// testRecord is the wire shape a test_gen agent emits per test.
type testRecord struct {
	Text             string `json:"text"`
	ExpectedBehavior string `json:"expected_behavior"`
	EvidenceCritical bool   `json:"evidence_critical"`
}

// testsParser decodes a JSON array of testRecord into sqltest.Test values.
func testsParser(raw string) ([]sqltest.Test, error) {
	var records []testRecord
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &records); err != nil {
		return nil, fmt.Errorf("sessioncache: parse tests response: %w", err)
	}
	out := make([]sqltest.Test, len(records))
	for i, r := range records {
		out[i] = sqltest.Test{Text: r.Text, ExpectedBehavior: r.ExpectedBehavior, EvidenceCritical: r.EvidenceCritical}
	}
	return out, nil
}

// selectorIndexParser decodes a bare integer or a {"index": n} JSON object.
func selectorIndexParser(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n, nil
	}
	var obj struct {
		Index int `json:"index"`
	}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return 0, fmt.Errorf("sessioncache: parse selector index response: %w", err)
	}
	return obj.Index, nil
}
