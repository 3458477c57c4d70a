package dbmanager

import (
	"context"
	"sync"
	"time"

	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// MockManager is a scriptable in-memory Manager for pipeline and evaluator
// tests, grounded on the teacher's core/worker mock pattern: behavior is
// configured by the test rather than by a live database.
type MockManager struct {
	mu       sync.Mutex
	dialect  workspace.Dialect
	readOnly bool
	// Responses maps a sql string to a canned (*Rows, error) response. The
	// zero response (empty Rows, nil error) is returned for unconfigured
	// statements so arbitrary probe/EXPLAIN text succeeds by default.
	Responses map[string]MockResponse
	Calls     []string
}

// MockResponse is the canned reply for one SQL string.
type MockResponse struct {
	Rows *Rows
	Err  error
}

// NewMockManager creates a MockManager for the given dialect.
func NewMockManager(dialect workspace.Dialect) *MockManager {
	return &MockManager{
		dialect:   dialect,
		Responses: make(map[string]MockResponse),
	}
}

func (m *MockManager) Dialect() workspace.Dialect { return m.dialect }
func (m *MockManager) ReadOnly() bool             { return m.readOnly }

// SetReadOnly configures the reported read-only mode.
func (m *MockManager) SetReadOnly(ro bool) { m.readOnly = ro }

func (m *MockManager) Execute(ctx context.Context, sql string, _ FetchMode, _ time.Duration) (*Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, sql)

	select {
	case <-ctx.Done():
		return nil, NewError(ErrorKindTimeout, ctx.Err())
	default:
	}

	if resp, ok := m.Responses[sql]; ok {
		return resp.Rows, resp.Err
	}
	return &Rows{}, nil
}
