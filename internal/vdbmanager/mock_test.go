package vdbmanager_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
)

func TestMockManagerSearchEvidenceTruncatesToK(t *testing.T) {
	m := vdbmanager.NewMockManager()
	m.EvidenceResponses["how many orders"] = []vdbmanager.Hit{
		{Text: "orders table has a status column", Score: 0.9},
		{Text: "orders join customers on customer_id", Score: 0.8},
		{Text: "unrelated evidence", Score: 0.1},
	}

	hits, err := m.SearchEvidence(context.Background(), "how many orders", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, []string{"evidence:how many orders"}, m.Calls)
}

func TestMockManagerUpsertSQLDocument(t *testing.T) {
	m := vdbmanager.NewMockManager()
	doc := vdbmanager.SQLDocument{Question: "q", SQL: "select 1", Evidence: []string{"e1"}}

	id, err := m.UpsertSQLDocument(context.Background(), doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, []vdbmanager.SQLDocument{doc}, m.Upserted)
}

func TestMockManagerUpsertPropagatesError(t *testing.T) {
	m := vdbmanager.NewMockManager()
	m.UpsertErr = context.Canceled

	_, err := m.UpsertSQLDocument(context.Background(), vdbmanager.SQLDocument{})
	require.ErrorIs(t, err, context.Canceled)
}
