// Package validator makes raw LLM SQL text executable: strip commentary,
// correct dialect delimiters, pretty-print, apply compatibility rewrites,
// then probe the result against the target database (spec §4.5).
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// Candidate is the validator's output for one raw SQL string.
type Candidate struct {
	Raw        string
	Normalized string
	ProbeOK    bool
	ProbeError string
}

// SqlOutputValidator runs the fixed five-step pipeline from spec §4.5. No
// SQL parser/formatter library exists anywhere in the retrieval pack, so
// steps 1-4 are hand-rolled, regex-based text transforms rather than an
// AST rewrite (see DESIGN.md for the standard-library justification);
// step 5 (the probe) is the one step that talks to a real dependency, the
// injected dbmanager.Manager.
type SqlOutputValidator struct {
	dialect      workspace.Dialect
	db           dbmanager.Manager
	probeTimeout time.Duration
	timeoutSrc   TimeoutSource
}

// TimeoutSource supplies the live, SIGHUP-reloadable DB probe timeout (spec
// §6 DB_TIMEOUT_MS). config.Store satisfies this.
type TimeoutSource interface {
	DBTimeout() time.Duration
}

// NewSqlOutputValidator builds a validator bound to one dialect and DB.
// probeTimeout is the fallback used until SetTimeoutSource is called.
func NewSqlOutputValidator(dialect workspace.Dialect, db dbmanager.Manager, probeTimeout time.Duration) *SqlOutputValidator {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &SqlOutputValidator{dialect: dialect, db: db, probeTimeout: probeTimeout}
}

// SetTimeoutSource wires a live timeout source in after construction, so
// DB_TIMEOUT_MS reload on SIGHUP takes effect on the next probe.
func (v *SqlOutputValidator) SetTimeoutSource(src TimeoutSource) {
	v.timeoutSrc = src
}

func (v *SqlOutputValidator) timeout() time.Duration {
	if v.timeoutSrc != nil {
		if t := v.timeoutSrc.DBTimeout(); t > 0 {
			return t
		}
	}
	return v.probeTimeout
}

// Validate runs the full pipeline and probes the result. It is pure and
// deterministic up to the probe call, so re-validating an already-normalized
// string yields the same Normalized text (spec §8 idempotence property).
func (v *SqlOutputValidator) Validate(ctx context.Context, raw string) Candidate {
	stage := stripFencesAndCommentary(raw)
	stage = correctDelimiters(stage, v.dialect)
	stage = prettyPrint(stage)
	stage = applyCompatibilityRewrites(stage, v.dialect)

	candidate := Candidate{Raw: raw, Normalized: stage}

	ok, errText := v.probe(ctx, stage)
	candidate.ProbeOK = ok
	candidate.ProbeError = errText
	return candidate
}

func (v *SqlOutputValidator) probe(ctx context.Context, sql string) (bool, string) {
	if strings.TrimSpace(sql) == "" {
		return false, "empty statement"
	}

	probeSQL := wrapProbe(sql, v.dialect)
	timeout := v.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := v.db.Execute(ctx, probeSQL, dbmanager.FetchNone, timeout)
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

func wrapProbe(sql string, dialect workspace.Dialect) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if dialect == workspace.DialectPostgres {
		return fmt.Sprintf("EXPLAIN %s", trimmed)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS thoth_probe LIMIT 0", trimmed)
}

var (
	fencedBlock      = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	leadingNarration = regexp.MustCompile(`(?i)^\s*(here('?s| is)|the following|this query)[^\n]*\n`)
)

// stripFencesAndCommentary removes markdown code fences and narration lines
// the model may prepend, keeping the first statement.
func stripFencesAndCommentary(raw string) string {
	text := raw
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = leadingNarration.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, ";"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

var (
	backtickIdent    = regexp.MustCompile("`([^`]+)`")
	doubleQuoteIdent = regexp.MustCompile(`"([^"]+)"`)
)

// correctDelimiters rewrites identifier quoting to match dialect: postgres
// and sqlite use double quotes, mysql uses backticks.
func correctDelimiters(sql string, dialect workspace.Dialect) string {
	switch dialect {
	case workspace.DialectMySQL:
		return doubleQuoteIdent.ReplaceAllString(sql, "`$1`")
	default:
		return backtickIdent.ReplaceAllString(sql, `"$1"`)
	}
}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// prettyPrint collapses run-on whitespace and normalizes keyword casing to
// upper-case, a conservative stand-in for a full SQL formatter.
func prettyPrint(sql string) string {
	lines := strings.Split(sql, "\n")
	for i, line := range lines {
		line = whitespaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
		lines[i] = upperCaseKeywords(line)
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(joined)
}

var sqlKeywords = []string{
	"select", "from", "where", "group by", "order by", "having", "join",
	"left join", "right join", "inner join", "outer join", "on", "as",
	"distinct", "limit", "offset", "and", "or", "not", "in", "exists",
	"union", "union all", "insert into", "values", "update", "set",
	"delete from", "count", "sum", "avg", "min", "max",
}

func upperCaseKeywords(line string) string {
	result := line
	for _, kw := range sqlKeywords {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		result = re.ReplaceAllString(result, strings.ToUpper(kw))
	}
	return result
}

var (
	distinctTuple   = regexp.MustCompile(`(?i)DISTINCT\s*\(`)
	questionMarkRun = regexp.MustCompile(`\?`)
)

// applyCompatibilityRewrites normalizes DISTINCT spacing and, for postgres,
// rewrites "?" placeholders to positional "$n" parameters.
func applyCompatibilityRewrites(sql string, dialect workspace.Dialect) string {
	result := distinctTuple.ReplaceAllString(sql, "DISTINCT (")

	if dialect != workspace.DialectPostgres {
		return result
	}

	n := 0
	return questionMarkRun.ReplaceAllStringFunc(result, func(string) string {
		n++
		return fmt.Sprintf("$%d", n)
	})
}
