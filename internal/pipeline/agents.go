package pipeline

import (
	"context"

	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// ValidatorAgent checks whether a question is well-formed enough to answer
// (spec §4.1 P1).
type ValidatorAgent interface {
	ValidateQuestion(ctx context.Context, question string) (bool, error)
}

// TranslatorAgent normalizes a question into the database's language.
type TranslatorAgent interface {
	Translate(ctx context.Context, question, targetLanguage string) (string, error)
}

// KeywordAgent extracts ordered keyword tokens from a question (spec §4.1 P2).
type KeywordAgent interface {
	ExtractKeywords(ctx context.Context, question string) ([]string, error)
}

// TestGenDeps is the typed dependency record test-generation agents render
// their system prompt against.
type TestGenDeps struct {
	Question string
	MSchema  string
	Evidence []vdbmanager.Hit
	Dialect  workspace.Dialect
}

// TestGenAgent produces candidate assertions for one temperature draw.
type TestGenAgent interface {
	GenerateTests(ctx context.Context, temperature float64, deps TestGenDeps) ([]sqltest.Test, error)
}

// SQLGenDeps is the typed dependency record SQL-generation agents render
// their system prompt against (spec §4.2's SqlGenerationDeps).
type SQLGenDeps struct {
	Question string
	MSchema  string
	Evidence []vdbmanager.Hit
	Examples []vdbmanager.QSQLExample
	Dialect  workspace.Dialect
	Language string
}

// SQLGenAgent produces one raw SQL candidate for one temperature draw.
type SQLGenAgent interface {
	GenerateSQL(ctx context.Context, temperature float64, deps SQLGenDeps) (string, error)
}

// ExplainDeps backs ExplainerAgent's synchronous P7 invocation.
type ExplainDeps struct {
	Question string
	SQL      string
	MSchema  string
	Evidence []vdbmanager.Hit
	Language string
}

// ExplainerAgent produces a natural-language explanation of selected SQL
// (spec §4.12).
type ExplainerAgent interface {
	Explain(ctx context.Context, deps ExplainDeps) (string, error)
}
