package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// SQLiteManager is an embedded-database Manager backed by modernc.org/sqlite,
// grounded on theRebelliousNerd-codenerd's use of modernc.org/sqlite for a
// pure-Go embedded driver, for setups where standing up a real postgres
// instance is unnecessary. Nothing in this module constructs one: the serve
// command builds PgxManager, and the test suites use MockManager.
type SQLiteManager struct {
	db       *sql.DB
	readOnly bool
}

// NewSQLiteManager opens (or creates) the sqlite database at path.
func NewSQLiteManager(path string, readOnly bool) (*SQLiteManager, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, NewError(ErrorKindConnexion, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewError(ErrorKindConnexion, err)
	}
	return &SQLiteManager{db: db, readOnly: readOnly}, nil
}

func (m *SQLiteManager) Dialect() workspace.Dialect { return workspace.DialectSQLite }
func (m *SQLiteManager) ReadOnly() bool             { return m.readOnly }
func (m *SQLiteManager) Close() error               { return m.db.Close() }

// DB exposes the underlying *sql.DB for fixture loading in tests.
func (m *SQLiteManager) DB() *sql.DB { return m.db }

func (m *SQLiteManager) Execute(ctx context.Context, query string, fetch FetchMode, timeout time.Duration) (*Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifySQLiteError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classifySQLiteError(err)
	}

	result := &Rows{Columns: cols}
	for rows.Next() {
		if fetch == FetchNone {
			continue
		}
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifySQLiteError(err)
		}
		result.Records = append(result.Records, raw)
		if fetch == FetchOne {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError(err)
	}
	return result, nil
}

func classifySQLiteError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorKindTimeout, err)
	}
	return NewError(ErrorKindExecution, err)
}
