package vdbmanager

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Embedder turns text into a dense vector. It is the one piece this adapter
// does not own: embedding provider + key + model is process-wide
// configuration (spec §6), injected at construction.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QdrantManager is the Qdrant-backed Manager, grounded on
// Tangerg-lynx/ai/providers/vectorstores/qdrant's store.go: the same
// collection-per-concern shape (separate collections for evidence and
// Q/SQL exemplars), the same payload round-trip via qdrant.Value, and the
// same upsert-by-point-struct pattern, adapted from a generic VectorStore
// interface to the narrower evidence/exemplar/feedback contract this core
// needs.
type QdrantManager struct {
	client             *qdrant.Client
	embedder           Embedder
	evidenceCollection string
	exemplarCollection string
}

// NewQdrantManager wires a qdrant.Client against the two collections this
// core reads from and writes to.
func NewQdrantManager(client *qdrant.Client, embedder Embedder, evidenceCollection, exemplarCollection string) *QdrantManager {
	return &QdrantManager{
		client:             client,
		embedder:           embedder,
		evidenceCollection: evidenceCollection,
		exemplarCollection: exemplarCollection,
	}
}

// EnsureCollections creates the evidence and exemplar collections if they do
// not already exist, sized to dim.
func (m *QdrantManager) EnsureCollections(ctx context.Context, dim uint64) error {
	for _, name := range []string{m.evidenceCollection, m.exemplarCollection} {
		exists, err := m.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("vdbmanager: check collection %s: %w", name, err)
		}
		if exists {
			continue
		}
		err = m.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dim,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("vdbmanager: create collection %s: %w", name, err)
		}
	}
	return nil
}

func (m *QdrantManager) SearchEvidence(ctx context.Context, q string, k int, filters map[string]string) ([]Hit, error) {
	vector, err := m.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("vdbmanager: embed evidence query: %w", err)
	}

	query := &qdrant.QueryPoints{
		CollectionName: m.evidenceCollection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildMatchFilter(filters); f != nil {
		query.Filter = f
	}

	points, err := m.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vdbmanager: query evidence: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, Hit{
			Text:   payloadString(payload, "text"),
			Source: payloadString(payload, "source"),
			Score:  float64(p.GetScore()),
		})
	}
	return hits, nil
}

func (m *QdrantManager) SearchSQLExamples(ctx context.Context, q string, k int) ([]QSQLExample, error) {
	vector, err := m.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("vdbmanager: embed exemplar query: %w", err)
	}

	points, err := m.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: m.exemplarCollection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vdbmanager: query sql examples: %w", err)
	}

	examples := make([]QSQLExample, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		examples = append(examples, QSQLExample{
			Question: payloadString(payload, "question"),
			SQL:      payloadString(payload, "sql"),
			Score:    float64(p.GetScore()),
		})
	}
	return examples, nil
}

func (m *QdrantManager) UpsertSQLDocument(ctx context.Context, doc SQLDocument) (string, error) {
	vector, err := m.embedder.Embed(ctx, doc.Question)
	if err != nil {
		return "", fmt.Errorf("vdbmanager: embed feedback document: %w", err)
	}

	id := uuid.NewString()
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"question": doc.Question,
			"sql":      doc.SQL,
			"evidence": doc.Evidence,
		}),
	}

	_, err = m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.exemplarCollection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return "", fmt.Errorf("vdbmanager: upsert feedback document: %w", err)
	}
	return id, nil
}

func buildMatchFilter(filters map[string]string) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for k, v := range filters {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}
