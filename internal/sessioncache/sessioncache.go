// Package sessioncache implements SessionCache (spec §4.10): amortizing
// per-workspace setup cost (DbManager/VdbManager connections, AgentAdapter
// construction) across repeat questions in the same session, keyed by
// (session_id, workspace_id, workspace_version) and invalidated by a
// version bump or a TTL.
package sessioncache

import (
	"context"
	"fmt"
	"sync"
	"time"

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
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// DefaultTTL is the spec §4.10 default entry lifetime.
const DefaultTTL = 30 * time.Minute

// Key identifies one cache entry.
type Key struct {
	SessionID        string
	WorkspaceID      int64
	WorkspaceVersion int64
}

// DBFactory builds the dbmanager.Manager for a workspace's connection string.
type DBFactory func(ctx context.Context, ws *workspace.Workspace) (dbmanager.Manager, error)

// VDBFactory builds the vdbmanager.Manager for a workspace's vector-store
// connection string.
type VDBFactory func(ctx context.Context, ws *workspace.Workspace) (vdbmanager.Manager, error)

// entry is one cached (Deps, Controller) pairing plus its expiry.
type entry struct {
	controller *pipeline.Controller
	expiresAt  time.Time
}

// ConfigSource supplies the live, SIGHUP-reloadable spec §6 tunables
// (DEADLINE_MS, AGENT_TIMEOUT_MS, DB_TIMEOUT_MS, MAX_ESCALATION_ATTEMPTS,
// RELEVANCE_W_BM25/_STRUCT) that build() wires into every component it
// constructs. config.Store satisfies this; a nil source leaves each
// component on its constructor-time static default.
type ConfigSource interface {
	pipeline.DynamicLimits
	agentpkg.TimeoutSource
	DBTimeout() time.Duration
}

// Cache is the process-wide SessionCache.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry

	loader       workspace.Loader
	registry     *modelprovider.Registry
	dbFactory    DBFactory
	vdbFactory   VDBFactory
	logger       *zap.SugaredLogger
	lshThreshold float64
	ttl          time.Duration
	debugTimings bool
	configSource ConfigSource
}

// New builds a Cache. A non-positive ttl falls back to DefaultTTL.
func New(loader workspace.Loader, registry *modelprovider.Registry, dbFactory DBFactory, vdbFactory VDBFactory, lshThreshold float64, ttl time.Duration, logger *zap.SugaredLogger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:      make(map[Key]entry),
		loader:       loader,
		registry:     registry,
		dbFactory:    dbFactory,
		vdbFactory:   vdbFactory,
		lshThreshold: lshThreshold,
		ttl:          ttl,
		logger:       logger,
	}
}

// Get returns the cached Controller for key, building and registering a
// fresh one on a miss, a TTL expiry, or a workspace_version bump (the
// caller is expected to have already resolved the current version into
// key.WorkspaceVersion, typically by a cheap workspace.Loader.Load call).
func (c *Cache) Get(ctx context.Context, key Key) (*pipeline.Controller, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.controller, nil
	}
	c.mu.Unlock()

	controller, err := c.build(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{controller: controller, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return controller, nil
}

// SetDebugTimings controls whether Controllers built from now on append a
// phase_timings THOTHLOG trailer frame (SPEC_FULL.md's phase-timing
// supplement). It does not affect already-cached entries.
func (c *Cache) SetDebugTimings(enabled bool) {
	c.mu.Lock()
	c.debugTimings = enabled
	c.mu.Unlock()
}

// SetConfigStore wires a live ConfigSource in after construction, so
// Controllers built from now on read spec §6 tunables live from Store on
// every request instead of capturing a value once at New. It does not
// affect already-cached entries.
func (c *Cache) SetConfigStore(src ConfigSource) {
	c.mu.Lock()
	c.configSource = src
	c.mu.Unlock()
}

// Invalidate drops key's entry, forcing the next Get to rebuild it.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) build(ctx context.Context, key Key) (*pipeline.Controller, error) {
	c.mu.Lock()
	debugTimings := c.debugTimings
	configSource := c.configSource
	c.mu.Unlock()

	ws, err := c.loader.Load(ctx, key.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("sessioncache: load workspace: %w", err)
	}
	ws.Normalize()

	db, err := c.dbFactory(ctx, ws)
	if err != nil {
		return nil, fmt.Errorf("sessioncache: build dbmanager: %w", err)
	}
	vdb, err := c.vdbFactory(ctx, ws)
	if err != nil {
		return nil, fmt.Errorf("sessioncache: build vdbmanager: %w", err)
	}

	templates, err := DefaultTemplates()
	if err != nil {
		return nil, fmt.Errorf("sessioncache: build template loader: %w", err)
	}

	pool := ws.AgentPool
	complexity, err := evaluator.NewComplexityScorer()
	if err != nil {
		return nil, fmt.Errorf("sessioncache: build complexity scorer: %w", err)
	}

	outputValidator := validator.NewSqlOutputValidator(ws.Dialect, db, 10*time.Second)
	evalRunner := evaluator.NewEvaluator(db, evaluator.DefaultConcurrency, 10*time.Second)
	if configSource != nil {
		outputValidator.SetTimeoutSource(configSource)
		evalRunner.SetTimeoutSource(configSource)
	}

	deps := pipeline.Deps{
		Workspace: ws,
		DB:        db,
		VDB:       vdb,

		Validator:        validatorAdapter{newAgent(pool.Validator, c.registry, templates, boolParser, c.logger, configSource)},
		Translator:       translatorAdapter{newAgent(pool.Translator, c.registry, templates, identityParser, c.logger, configSource)},
		KeywordExtractor: keywordAdapter{newAgent(pool.KeywordExtract, c.registry, templates, keywordsParser, c.logger, configSource)},
		TestGenerators:   buildTestGenerators(pool.TestGenerators, c.registry, templates, c.logger, configSource),
		SQLGenerators:    buildSQLGenerators(pool.SQLGenerators, c.registry, templates, c.logger, configSource),
		Explainer:        explainerAdapter{newAgent(pool.Explainer, c.registry, templates, identityParser, c.logger, configSource)},

		ContextRetriever: contextretriever.NewContextRetriever(vdb, c.lshThreshold),
		OutputValidator:  outputValidator,
		Evaluator:        evalRunner,
		Complexity:       complexity,
		Selector: selector.NewSelector(
			newAgent(pool.Selector, c.registry, templates, selectorIndexParser, c.logger, configSource),
			newAgent(pool.Supervisor, c.registry, templates, boolParser, c.logger, configSource),
		),

		Logger:         c.logger,
		MaxEscalations: workspace.DefaultMaxEscalationAttempts,
		DebugTimings:   debugTimings,
		Limits:         configSource,
	}

	return pipeline.NewController(deps), nil
}

// newAgent builds an AgentAdapter and, when configSource is set, wires it as
// the adapter's live AGENT_TIMEOUT_MS source.
func newAgent[Out any](cfg workspace.AgentConfig, registry *modelprovider.Registry, templates *agentpkg.TemplateLoader, parse agentpkg.Parser[Out], logger *zap.SugaredLogger, configSource ConfigSource) *agentpkg.AgentAdapter[Out] {
	a := agentpkg.NewAgentAdapter(cfg, registry, templates, parse, logger)
	if configSource != nil {
		a.SetTimeoutSource(configSource)
	}
	return a
}

func buildTestGenerators(configs []workspace.AgentConfig, registry *modelprovider.Registry, templates *agentpkg.TemplateLoader, logger *zap.SugaredLogger, configSource ConfigSource) []pipeline.TestGenAgent {
	agents := make([]pipeline.TestGenAgent, len(configs))
	for i, cfg := range configs {
		agents[i] = testGenAdapter{newAgent[[]sqltest.Test](cfg, registry, templates, testsParser, logger, configSource)}
	}
	return agents
}

func buildSQLGenerators(configs map[workspace.FunctionalityLevel][]workspace.AgentConfig, registry *modelprovider.Registry, templates *agentpkg.TemplateLoader, logger *zap.SugaredLogger, configSource ConfigSource) map[workspace.FunctionalityLevel][]pipeline.SQLGenAgent {
	out := make(map[workspace.FunctionalityLevel][]pipeline.SQLGenAgent, len(configs))
	for level, cfgs := range configs {
		agents := make([]pipeline.SQLGenAgent, len(cfgs))
		for i, cfg := range cfgs {
			agents[i] = sqlGenAdapter{newAgent(cfg, registry, templates, identityParser, logger, configSource)}
		}
		out[level] = agents
	}
	return out
}
