package agentpkg_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

func newTestLoader(t *testing.T) *agentpkg.TemplateLoader {
	t.Helper()
	loader, err := agentpkg.NewTemplateLoader(map[string]agentpkg.Template{
		"sql_basic": {
			SystemTemplate: "Generate SQL for {{.Dialect}}.",
			UserTemplate:   "{{.Question}}",
		},
	})
	require.NoError(t, err)
	return loader
}

func identityParser(raw string) (string, error) { return raw, nil }

func TestAgentAdapterFallsBackOnError(t *testing.T) {
	registry := modelprovider.NewRegistry()
	primary := modelprovider.NewMockProvider()
	primary.Err = errors.New("primary down")
	fallback := modelprovider.NewMockProvider()
	fallback.Responses["fallback-model"] = []modelprovider.CompletionResult{{Text: "select 1"}}

	registry.Register("primary-provider", primary)
	registry.Register("fallback-provider", fallback)

	cfg := workspace.AgentConfig{
		Name:        "sql_basic",
		Kind:        workspace.KindSQLBasic,
		Primary:     workspace.ModelHandle{Provider: "primary-provider", ModelID: "primary-model"},
		Fallbacks:   []workspace.ModelHandle{{Provider: "fallback-provider", ModelID: "fallback-model"}},
		TemplateKey: "sql_basic",
	}

	adapter := agentpkg.NewAgentAdapter[string](cfg, registry, newTestLoader(t), identityParser, zap.NewNop().Sugar())

	out, err := adapter.Call(context.Background(), agentpkg.CallParams{
		Deps: map[string]any{"Dialect": "postgres"},
		Vars: map[string]any{"Question": "how many orders"},
	})
	require.NoError(t, err)
	require.Equal(t, "select 1", out)
	require.Len(t, primary.Calls, 1)
	require.Len(t, fallback.Calls, 1)
}

func TestAgentAdapterExhaustsChain(t *testing.T) {
	registry := modelprovider.NewRegistry()
	failing := modelprovider.NewMockProvider()
	failing.Err = errors.New("down")
	registry.Register("p", failing)

	cfg := workspace.AgentConfig{
		Name:        "sql_basic",
		Primary:     workspace.ModelHandle{Provider: "p", ModelID: "m1"},
		Fallbacks:   []workspace.ModelHandle{{Provider: "p", ModelID: "m2"}},
		TemplateKey: "sql_basic",
	}
	adapter := agentpkg.NewAgentAdapter[string](cfg, registry, newTestLoader(t), identityParser, zap.NewNop().Sugar())

	_, err := adapter.Call(context.Background(), agentpkg.CallParams{
		Deps: map[string]any{"Dialect": "postgres"},
		Vars: map[string]any{"Question": "q"},
	})
	require.Error(t, err)
}

func TestAgentAdapterParseErrorFallsThrough(t *testing.T) {
	registry := modelprovider.NewRegistry()
	bad := modelprovider.NewMockProvider()
	bad.Responses["m1"] = []modelprovider.CompletionResult{{Text: "not-json"}}
	good := modelprovider.NewMockProvider()
	good.Responses["m2"] = []modelprovider.CompletionResult{{Text: "ok"}}
	registry.Register("p1", bad)
	registry.Register("p2", good)

	cfg := workspace.AgentConfig{
		Name:        "x",
		Primary:     workspace.ModelHandle{Provider: "p1", ModelID: "m1"},
		Fallbacks:   []workspace.ModelHandle{{Provider: "p2", ModelID: "m2"}},
		TemplateKey: "sql_basic",
	}
	parser := func(raw string) (string, error) {
		if raw != "ok" {
			return "", errors.New("bad output")
		}
		return raw, nil
	}
	adapter := agentpkg.NewAgentAdapter[string](cfg, registry, newTestLoader(t), parser, zap.NewNop().Sugar())

	out, err := adapter.Call(context.Background(), agentpkg.CallParams{
		Deps: map[string]any{"Dialect": "postgres"},
		Vars: map[string]any{"Question": "q"},
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}
