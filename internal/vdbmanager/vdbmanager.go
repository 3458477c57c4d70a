// Package vdbmanager defines the VdbManager contract (spec §6) the core
// consumes for evidence retrieval, Q/SQL exemplar retrieval, and feedback
// persistence. The vector database itself is out of scope for the core;
// concrete bindings live alongside the contract because wiring a real
// client is part of the domain stack this module exercises.
package vdbmanager

import "context"

// Hit is one evidence retrieval result (spec §3 `evidence`).
type Hit struct {
	Text   string
	Source string
	Score  float64
}

// QSQLExample is one retrieved (question, sql) exemplar pair.
type QSQLExample struct {
	Question string
	SQL      string
	Score    float64
}

// SQLDocument is the tuple FeedbackSink upserts back into the vector store.
type SQLDocument struct {
	Question string
	SQL      string
	Evidence []string
}

// Manager is the contract the core consumes for vector-store backed
// retrieval and feedback persistence.
type Manager interface {
	// SearchEvidence retrieves up to k evidence passages relevant to q,
	// filtered by workspace-scoped metadata.
	SearchEvidence(ctx context.Context, q string, k int, filters map[string]string) ([]Hit, error)
	// SearchSQLExamples retrieves up to k (question, sql) exemplar pairs.
	SearchSQLExamples(ctx context.Context, q string, k int) ([]QSQLExample, error)
	// UpsertSQLDocument persists doc for future retrieval, returning its ID.
	UpsertSQLDocument(ctx context.Context, doc SQLDocument) (string, error)
}
