// Package dbmanager defines the DbManager contract the core consumes to
// execute SQL against a workspace's target database (spec §6). The SQL
// driver layer itself is out of scope; this package also ships a pgx-backed
// adapter and a modernc.org/sqlite-backed adapter used for local fixtures
// and tests, grounded the way codeready-toolchain-tarsy and
// theRebelliousNerd-codenerd wire their respective SQL drivers.
package dbmanager

import (
	"context"
	"errors"
	"time"

	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// FetchMode mirrors spec §6's execute_sql(sql, fetch) contract.
type FetchMode string

const (
	FetchNone FetchMode = "none"
	FetchOne  FetchMode = "one"
	FetchAll  FetchMode = "all"
)

// Rows is a dialect-agnostic result set.
type Rows struct {
	Columns []string
	Records [][]any
}

// Len reports the number of returned records.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// ErrorKind classifies a DbManager failure for the propagation policy in
// spec §7 (single-cell KO vs. DATABASE_ERROR escalation).
type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindSyntax    ErrorKind = "syntax"
	ErrorKindExecution ErrorKind = "execution"
	ErrorKindConnexion ErrorKind = "connection"
)

// Error is a DbManager failure tagged with a kind, so evaluation and
// probing code can distinguish a per-cell KO from a connection-wide outage.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a classification kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// IsConnexionError reports whether err indicates the whole database is
// unreachable, as opposed to one statement failing.
func IsConnexionError(err error) bool {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind == ErrorKindConnexion
	}
	return false
}

// Manager is the contract the core consumes to run SQL against a
// workspace's target database: test assertions (Evaluator), validator
// probes (SqlOutputValidator), and paginated execution (§6's
// /execute-query). The concrete driver is an external collaborator.
type Manager interface {
	// Execute runs sql and fetches results per mode, bounded by timeout.
	Execute(ctx context.Context, sql string, fetch FetchMode, timeout time.Duration) (*Rows, error)
	// Dialect reports the target SQL dialect.
	Dialect() workspace.Dialect
	// ReadOnly reports whether this manager only permits read statements.
	ReadOnly() bool
}
