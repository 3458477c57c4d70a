package vdbmanager

import (
	"context"
	"sync"
)

// MockManager is a scriptable in-memory Manager for context-retriever and
// pipeline tests, the same shape as dbmanager.MockManager: responses are
// keyed by query text rather than produced by a live vector store.
type MockManager struct {
	mu sync.Mutex

	EvidenceResponses map[string][]Hit
	ExampleResponses  map[string][]QSQLExample
	UpsertErr         error

	Upserted []SQLDocument
	Calls    []string
}

// NewMockManager creates an empty, scriptable MockManager.
func NewMockManager() *MockManager {
	return &MockManager{
		EvidenceResponses: make(map[string][]Hit),
		ExampleResponses:  make(map[string][]QSQLExample),
	}
}

func (m *MockManager) SearchEvidence(_ context.Context, q string, k int, _ map[string]string) ([]Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "evidence:"+q)

	hits := m.EvidenceResponses[q]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MockManager) SearchSQLExamples(_ context.Context, q string, k int) ([]QSQLExample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "examples:"+q)

	examples := m.ExampleResponses[q]
	if len(examples) > k {
		examples = examples[:k]
	}
	return examples, nil
}

func (m *MockManager) UpsertSQLDocument(_ context.Context, doc SQLDocument) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return "", m.UpsertErr
	}
	m.Upserted = append(m.Upserted, doc)
	return "mock-doc-id", nil
}
