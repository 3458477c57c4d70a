// Package workspace defines the read-only configuration records the core
// receives from the admin surface (out of scope, consumed via WorkspaceLoader)
// together with the functionality-level and flag vocabulary from spec §3.
package workspace

import (
	"context"
	"errors"
	"fmt"
)

// FunctionalityLevel selects which tier of SQL/test generation agents to
// dispatch; escalation walks this ladder in order.
type FunctionalityLevel string

const (
	LevelBasic    FunctionalityLevel = "basic"
	LevelAdvanced FunctionalityLevel = "advanced"
	LevelExpert   FunctionalityLevel = "expert"
)

// Next returns the next level up the escalation ladder, and false if level
// is already the top (expert).
func (l FunctionalityLevel) Next() (FunctionalityLevel, bool) {
	switch l {
	case LevelBasic:
		return LevelAdvanced, true
	case LevelAdvanced:
		return LevelExpert, true
	default:
		return l, false
	}
}

// Flags is the per-request set of boolean toggles from spec §3.
type Flags struct {
	UseSchema           bool
	UseExamples         bool
	UseLSH              bool
	UseVector           bool
	BeltAndSuspenders   bool
	ExplainGeneratedSQL bool
	ShowSQL             bool
}

// Dialect identifies the target SQL dialect for delimiter correction and
// driver selection.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ModelHandle identifies one callable model: a provider, a model ID, and
// inference parameters. Primary and fallback entries share this shape so
// the fallback chain can iterate over a single, uniform slice.
type ModelHandle struct {
	Provider    string
	ModelID     string
	APIKeyRef   string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// AgentKind enumerates every role an AgentConfig can fill. It is a closed
// set: TemplateLoader and AgentAdapter construction both switch over it
// exhaustively, so adding a new kind is a compile-time-visible change.
type AgentKind string

const (
	KindValidator       AgentKind = "validator"
	KindTranslator      AgentKind = "translator"
	KindKeywordExtract  AgentKind = "keyword_extractor"
	KindSQLBasic        AgentKind = "sql_basic"
	KindSQLAdvanced     AgentKind = "sql_advanced"
	KindSQLExpert       AgentKind = "sql_expert"
	KindTestGen         AgentKind = "test_gen"
	KindEvaluatorAgent  AgentKind = "evaluator"
	KindSelectorAgent   AgentKind = "selector"
	KindSupervisorAgent AgentKind = "supervisor"
	KindTestReducer     AgentKind = "test_reducer"
	KindExplainer       AgentKind = "explainer"
)

// SQLKindForLevel maps a functionality level to its SQL-generation agent kind.
func SQLKindForLevel(level FunctionalityLevel) AgentKind {
	switch level {
	case LevelAdvanced:
		return KindSQLAdvanced
	case LevelExpert:
		return KindSQLExpert
	default:
		return KindSQLBasic
	}
}

// AgentConfig is the read-only record loaded from the admin surface that
// parameterizes one AgentAdapter: which models to call, in what order, and
// which prompt template and output schema to use.
type AgentConfig struct {
	Name        string
	Kind        AgentKind
	Primary     ModelHandle
	Fallbacks   []ModelHandle
	TemplateKey string
}

// Chain returns primary followed by the configured fallbacks, the order the
// fallback chain (spec §4.2, §9) walks on error.
func (c AgentConfig) Chain() []ModelHandle {
	chain := make([]ModelHandle, 0, 1+len(c.Fallbacks))
	chain = append(chain, c.Primary)
	chain = append(chain, c.Fallbacks...)
	return chain
}

// AgentPoolConfig groups the AgentConfigs the core dispatches in parallel,
// keyed by functionality level for SQL generation, plus the level-agnostic
// agents (test generation, evaluation support, selection, explanation).
type AgentPoolConfig struct {
	SQLGenerators  map[FunctionalityLevel][]AgentConfig
	TestGenerators []AgentConfig
	Selector       AgentConfig
	Supervisor     AgentConfig
	TestReducer    AgentConfig
	Explainer      AgentConfig
	Validator      AgentConfig
	Translator     AgentConfig
	KeywordExtract AgentConfig
}

// Workspace is the read-only per-workspace configuration record (spec §3).
type Workspace struct {
	ID                      int64
	Name                    string
	DefaultModel            ModelHandle
	EvaluationThreshold     float64
	NumberOfSQLsToGenerate  int
	NumberOfTestsToGenerate int
	Language                string
	Dialect                 Dialect
	DBConnection            string
	VDBConnection           string
	AgentPool               AgentPoolConfig
	Version                 int64
}

// DefaultEvaluationThreshold is used when a loaded Workspace leaves
// EvaluationThreshold unset (spec §3 default 0.90).
const DefaultEvaluationThreshold = 0.90

// DefaultMaxEscalationAttempts is the spec §3 default escalation budget.
const DefaultMaxEscalationAttempts = 2

// Normalize fills in spec-mandated defaults left zero by the loader.
func (w *Workspace) Normalize() {
	if w.EvaluationThreshold <= 0 {
		w.EvaluationThreshold = DefaultEvaluationThreshold
	}
	if w.NumberOfSQLsToGenerate <= 0 {
		w.NumberOfSQLsToGenerate = 3
	}
	if w.NumberOfTestsToGenerate <= 0 {
		w.NumberOfTestsToGenerate = 3
	}
	if w.Language == "" {
		w.Language = "en"
	}
}

// ErrNotFound is returned by Loader.Load when no workspace matches the ID.
var ErrNotFound = errors.New("workspace: not found")

// Loader resolves a workspace_id to its configuration record. The concrete
// implementation (the admin/config surface) is out of scope for the core;
// this is the contract the core consumes.
type Loader interface {
	Load(ctx context.Context, workspaceID int64) (*Workspace, error)
}

// StaticLoader is an in-memory Loader, used for tests and for any
// deployment that provisions workspaces via the process config rather than
// a live admin surface.
type StaticLoader struct {
	workspaces map[int64]*Workspace
}

// NewStaticLoader builds a StaticLoader from a fixed set of workspaces.
func NewStaticLoader(workspaces ...*Workspace) *StaticLoader {
	l := &StaticLoader{workspaces: make(map[int64]*Workspace, len(workspaces))}
	for _, w := range workspaces {
		w.Normalize()
		l.workspaces[w.ID] = w
	}
	return l
}

func (l *StaticLoader) Load(_ context.Context, workspaceID int64) (*Workspace, error) {
	w, ok := l.workspaces[workspaceID]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrNotFound, workspaceID)
	}
	return w, nil
}
