package sessioncache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/sessioncache"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

func agentConfig(kind workspace.AgentKind) workspace.AgentConfig {
	return workspace.AgentConfig{
		Name:        string(kind),
		Kind:        kind,
		Primary:     workspace.ModelHandle{Provider: "mock", ModelID: "m1"},
		TemplateKey: string(kind),
	}
}

func newTestWorkspace(id int64) *workspace.Workspace {
	return &workspace.Workspace{
		ID: id, Dialect: workspace.DialectSQLite, Language: "en",
		AgentPool: workspace.AgentPoolConfig{
			SQLGenerators: map[workspace.FunctionalityLevel][]workspace.AgentConfig{
				workspace.LevelBasic: {agentConfig(workspace.KindSQLBasic)},
			},
			TestGenerators: []workspace.AgentConfig{agentConfig(workspace.KindTestGen)},
			Selector:       agentConfig(workspace.KindSelectorAgent),
			Supervisor:     agentConfig(workspace.KindSupervisorAgent),
			Explainer:      agentConfig(workspace.KindExplainer),
			Validator:      agentConfig(workspace.KindValidator),
			Translator:     agentConfig(workspace.KindTranslator),
			KeywordExtract: agentConfig(workspace.KindKeywordExtract),
		},
	}
}

func newRegistry() *modelprovider.Registry {
	registry := modelprovider.NewRegistry()
	provider := modelprovider.NewMockProvider()
	registry.Register("mock", provider)
	return registry
}

func TestGetBuildsAndCachesController(t *testing.T) {
	loader := workspace.NewStaticLoader(newTestWorkspace(1))
	cache := sessioncache.New(loader, newRegistry(),
		func(context.Context, *workspace.Workspace) (dbmanager.Manager, error) {
			return dbmanager.NewMockManager(workspace.DialectSQLite), nil
		},
		func(context.Context, *workspace.Workspace) (vdbmanager.Manager, error) {
			return vdbmanager.NewMockManager(), nil
		},
		0, time.Minute, zap.NewNop().Sugar(),
	)

	key := sessioncache.Key{SessionID: "s1", WorkspaceID: 1, WorkspaceVersion: 1}
	first, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.Same(t, first, second, "a cache hit must return the same Controller instance")
}

func TestGetRebuildsAfterInvalidate(t *testing.T) {
	loader := workspace.NewStaticLoader(newTestWorkspace(1))
	cache := sessioncache.New(loader, newRegistry(),
		func(context.Context, *workspace.Workspace) (dbmanager.Manager, error) {
			return dbmanager.NewMockManager(workspace.DialectSQLite), nil
		},
		func(context.Context, *workspace.Workspace) (vdbmanager.Manager, error) {
			return vdbmanager.NewMockManager(), nil
		},
		0, time.Minute, zap.NewNop().Sugar(),
	)

	key := sessioncache.Key{SessionID: "s1", WorkspaceID: 1, WorkspaceVersion: 1}
	first, err := cache.Get(context.Background(), key)
	require.NoError(t, err)

	cache.Invalidate(key)

	second, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotSame(t, first, second, "invalidation must force a rebuild")
}

func TestGetPropagatesUnknownWorkspace(t *testing.T) {
	loader := workspace.NewStaticLoader(newTestWorkspace(1))
	cache := sessioncache.New(loader, newRegistry(),
		func(context.Context, *workspace.Workspace) (dbmanager.Manager, error) {
			return dbmanager.NewMockManager(workspace.DialectSQLite), nil
		},
		func(context.Context, *workspace.Workspace) (vdbmanager.Manager, error) {
			return vdbmanager.NewMockManager(), nil
		},
		0, time.Minute, zap.NewNop().Sugar(),
	)

	_, err := cache.Get(context.Background(), sessioncache.Key{SessionID: "s1", WorkspaceID: 999, WorkspaceVersion: 1})
	require.Error(t, err)
}
