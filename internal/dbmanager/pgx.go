package dbmanager

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// PgxManager is the postgres-dialect Manager, grounded on
// codeready-toolchain-tarsy's use of github.com/jackc/pgx/v5 as its SQL
// driver. Every query is wrapped in a read-only transaction when the
// manager is opened read-only (spec §5's concurrent-read requirement).
type PgxManager struct {
	pool     *pgxpool.Pool
	readOnly bool
}

// NewPgxManager opens a pgx pool against connString.
func NewPgxManager(ctx context.Context, connString string, readOnly bool) (*PgxManager, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, NewError(ErrorKindConnexion, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, NewError(ErrorKindConnexion, err)
	}
	return &PgxManager{pool: pool, readOnly: readOnly}, nil
}

func (m *PgxManager) Dialect() workspace.Dialect { return workspace.DialectPostgres }
func (m *PgxManager) ReadOnly() bool             { return m.readOnly }

// Close releases the underlying connection pool.
func (m *PgxManager) Close() { m.pool.Close() }

func (m *PgxManager) Execute(ctx context.Context, sql string, fetch FetchMode, timeout time.Duration) (*Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := pgx.TxOptions{AccessMode: pgx.ReadWrite}
	if m.readOnly {
		opts.AccessMode = pgx.ReadOnly
	}

	tx, err := m.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, classifyPgxError(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, classifyPgxError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	result := &Rows{Columns: cols}
	for rows.Next() {
		if fetch == FetchNone {
			continue
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, classifyPgxError(err)
		}
		result.Records = append(result.Records, vals)
		if fetch == FetchOne {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgxError(err)
	}

	return result, tx.Commit(ctx)
}

func classifyPgxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorKindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorKindTimeout, err)
	}
	return NewError(ErrorKindExecution, err)
}
