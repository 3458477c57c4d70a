// Package evaluator implements Evaluator (spec §4.8): running every
// (test, candidate) pair against DbManager to build the OK/KO matrix and
// per-candidate pass_rate, bounded to a small concurrent fan-out.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
)

// DefaultConcurrency is the bounded fan-out width from spec §4.8 ("e.g. 4
// concurrent DB calls").
const DefaultConcurrency = 4

// Outcome is one evaluation cell's verdict.
type Outcome string

const (
	OK Outcome = "OK"
	KO Outcome = "KO"
)

// Cell is one (candidate, test) evaluation result.
type Cell struct {
	Outcome Outcome
	Error   string
}

// cellKey indexes Matrix.Cells by (candidateIndex, testIndex).
type cellKey struct {
	Candidate int
	Test      int
}

// Matrix is RequestState.evaluation_matrix plus the derived pass_rate
// vector (spec §3).
type Matrix struct {
	Cells    map[cellKey]Cell
	PassRate []float64
}

// At returns the cell for (candidateIndex, testIndex).
func (m Matrix) At(candidateIndex, testIndex int) (Cell, bool) {
	c, ok := m.Cells[cellKey{Candidate: candidateIndex, Test: testIndex}]
	return c, ok
}

// EvidenceCriticalPassed reports whether every EVIDENCE_CRITICAL test
// passed for candidateIndex (spec §3's GOLD invariant).
func (m Matrix) EvidenceCriticalPassed(candidateIndex int, tests []sqltest.Test) bool {
	for testIndex, t := range tests {
		if !t.EvidenceCritical {
			continue
		}
		cell, ok := m.At(candidateIndex, testIndex)
		if !ok || cell.Outcome != OK {
			return false
		}
	}
	return true
}

// Evaluator runs the test matrix against one DbManager.
type Evaluator struct {
	db             dbmanager.Manager
	concurrency    int
	perCallTimeout time.Duration
	timeoutSrc     TimeoutSource
}

// TimeoutSource supplies the live, SIGHUP-reloadable per-cell DB timeout
// (spec §6 DB_TIMEOUT_MS). config.Store satisfies this.
type TimeoutSource interface {
	DBTimeout() time.Duration
}

// NewEvaluator builds an Evaluator. A non-positive concurrency falls back
// to DefaultConcurrency. perCallTimeout is the fallback used until
// SetTimeoutSource is called.
func NewEvaluator(db dbmanager.Manager, concurrency int, perCallTimeout time.Duration) *Evaluator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if perCallTimeout <= 0 {
		perCallTimeout = 10 * time.Second
	}
	return &Evaluator{db: db, concurrency: concurrency, perCallTimeout: perCallTimeout}
}

// SetTimeoutSource wires a live timeout source in after construction, so
// DB_TIMEOUT_MS reload on SIGHUP takes effect on the next Run.
func (e *Evaluator) SetTimeoutSource(src TimeoutSource) {
	e.timeoutSrc = src
}

func (e *Evaluator) timeout() time.Duration {
	if e.timeoutSrc != nil {
		if t := e.timeoutSrc.DBTimeout(); t > 0 {
			return t
		}
	}
	return e.perCallTimeout
}

// Run executes every (candidate, test) pair and returns the resulting
// Matrix. A DB error on one cell marks that cell KO with an error tag and
// is not itself fatal (spec §4.1's failure semantics); Run only returns an
// error when every single cell errored, signaling a database-wide outage.
func (e *Evaluator) Run(ctx context.Context, candidates []sqltest.SQLCandidate, tests []sqltest.Test) (Matrix, error) {
	matrix := Matrix{
		Cells:    make(map[cellKey]Cell, len(candidates)*len(tests)),
		PassRate: make([]float64, len(candidates)),
	}
	if len(candidates) == 0 || len(tests) == 0 {
		return matrix, nil
	}

	sem := semaphore.NewWeighted(int64(e.concurrency))
	type outcome struct {
		key  cellKey
		cell Cell
	}
	results := make(chan outcome, len(candidates)*len(tests))

	for ci, candidate := range candidates {
		for ti, test := range tests {
			ci, ti, candidate, test := ci, ti, candidate, test
			go func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					results <- outcome{key: cellKey{ci, ti}, cell: Cell{Outcome: KO, Error: err.Error()}}
					return
				}
				defer sem.Release(1)
				results <- outcome{key: cellKey{ci, ti}, cell: e.evaluateCell(ctx, candidate, test)}
			}()
		}
	}

	total := len(candidates) * len(tests)
	errored := 0
	for i := 0; i < total; i++ {
		r := <-results
		matrix.Cells[r.key] = r.cell
		if r.cell.Outcome == KO && r.cell.Error != "" {
			errored++
		}
	}

	for ci := range candidates {
		ok := 0
		for ti := range tests {
			if cell, found := matrix.At(ci, ti); found && cell.Outcome == OK {
				ok++
			}
		}
		matrix.PassRate[ci] = float64(ok) / float64(len(tests))
	}

	if errored == total {
		return matrix, fmt.Errorf("evaluator: all %d evaluation cells errored, database likely unavailable", total)
	}
	return matrix, nil
}

func (e *Evaluator) evaluateCell(ctx context.Context, candidate sqltest.SQLCandidate, test sqltest.Test) Cell {
	assertion := strings.ReplaceAll(test.ExpectedBehavior, "{{candidate_sql}}", candidate.Normalized)
	if assertion == "" {
		return Cell{Outcome: KO, Error: "evaluator: empty assertion"}
	}

	rows, err := e.db.Execute(ctx, assertion, dbmanager.FetchOne, e.timeout())
	if err != nil {
		return Cell{Outcome: KO, Error: err.Error()}
	}
	if rows.Len() == 0 || len(rows.Records[0]) == 0 {
		return Cell{Outcome: KO, Error: "evaluator: assertion returned no rows"}
	}
	if truthy(rows.Records[0][0]) {
		return Cell{Outcome: OK}
	}
	return Cell{Outcome: KO}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val == "t" || val == "true" || val == "1"
	default:
		return false
	}
}
