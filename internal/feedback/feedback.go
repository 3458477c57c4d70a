// Package feedback implements FeedbackSink (spec §4.11): persisting
// positively-signaled (question, sql, evidence) tuples back into the
// vector store, out-of-band of the pipeline, with dedup by
// (question_hash, sql_hash) and writes serialized per collection.
package feedback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
)

// Result is the outcome of one Save call.
type Result struct {
	ID         string
	Duplicate  bool
	QuestionID string
}

// Sink persists approved (question, sql, evidence) tuples, deduplicating by
// the hash of the normalized (question, sql) pair. Writes are serialized
// with a mutex since a single vector-store collection is not guaranteed to
// handle concurrent upserts safely (spec §5: "writes are serialized per
// (vdb, collection)").
type Sink struct {
	mu   sync.Mutex
	vdb  vdbmanager.Manager
	seen map[string]string // dedup key -> doc id
}

// New builds a Sink over vdb.
func New(vdb vdbmanager.Manager) *Sink {
	return &Sink{vdb: vdb, seen: make(map[string]string)}
}

// Save persists the tuple, skipping the upsert entirely if an equivalent
// (question, sql) pair was already saved by this Sink instance.
func (s *Sink) Save(ctx context.Context, question, sql string, evidence []string) (Result, error) {
	key := dedupKey(question, sql)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.seen[key]; ok {
		return Result{ID: id, Duplicate: true, QuestionID: key}, nil
	}

	id, err := s.vdb.UpsertSQLDocument(ctx, vdbmanager.SQLDocument{
		Question: question, SQL: sql, Evidence: evidence,
	})
	if err != nil {
		return Result{}, fmt.Errorf("feedback: upsert sql document: %w", err)
	}

	s.seen[key] = id
	return Result{ID: id, QuestionID: key}, nil
}

// dedupKey hashes the normalized question and sql separately, matching
// spec §4.11's "(question_hash, sql_hash)" pairing.
func dedupKey(question, sql string) string {
	return hashOf(normalize(question)) + ":" + hashOf(normalize(sql))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
