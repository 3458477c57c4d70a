package contextretriever_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mptyl/thoth-sqlcore/internal/contextretriever"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

func sampleSchema() contextretriever.Schema {
	return contextretriever.Schema{
		Tables: []contextretriever.Table{
			{Name: "schools", Columns: []contextretriever.ColumnDef{
				{Name: "id", Type: "int"},
				{Name: "virtual", Type: "text", SampleValues: []string{"F", "V", "Both"}},
				{Name: "district_id", Type: "int"},
			}},
			{Name: "districts", Columns: []contextretriever.ColumnDef{
				{Name: "id", Type: "int"},
				{Name: "name", Type: "text"},
			}},
		},
		ForeignKeys: []contextretriever.ForeignKey{
			{
				Column: contextretriever.ColumnRef{Table: "schools", Column: "district_id"},
				Refers: contextretriever.ColumnRef{Table: "districts", Column: "id"},
			},
		},
	}
}

func TestDecideSchemaLinkStrategy(t *testing.T) {
	require.Equal(t, contextretriever.WithSchemaLink, contextretriever.DecideSchemaLinkStrategy(true, 1, 0))
	require.Equal(t, contextretriever.WithSchemaLink, contextretriever.DecideSchemaLinkStrategy(true, 0, 1))
	require.Equal(t, contextretriever.WithoutSchemaLink, contextretriever.DecideSchemaLinkStrategy(true, 0, 0))
	require.Equal(t, contextretriever.WithoutSchemaLink, contextretriever.DecideSchemaLinkStrategy(false, 1, 1))
}

func TestMatchColumnsFindsVirtualColumn(t *testing.T) {
	schema := sampleSchema()
	refs := contextretriever.MatchColumns(schema, []string{"virtual", "schools"}, 0.2)
	require.NotEmpty(t, refs)

	found := false
	for _, r := range refs {
		if r.Table == "schools" && r.Column == "virtual" {
			found = true
		}
	}
	require.True(t, found)
}

func TestRenderReducedMSchemaIncludesFKNeighbor(t *testing.T) {
	schema := sampleSchema()
	reduced := contextretriever.RenderReducedMSchema(schema, []contextretriever.ColumnRef{
		{Table: "schools", Column: "district_id"},
	})
	require.Contains(t, reduced, "TABLE schools")
	require.Contains(t, reduced, "TABLE districts")
}

func TestRetrieveWithSchemaLink(t *testing.T) {
	vdb := vdbmanager.NewMockManager()
	vdb.ExampleResponses["how many virtual schools"] = []vdbmanager.QSQLExample{{Question: "q", SQL: "select 1"}}

	retriever := contextretriever.NewContextRetriever(vdb, 0.2)
	flags := workspace.Flags{UseSchema: true, UseLSH: true, UseVector: true}

	result, err := retriever.Retrieve(context.Background(), "how many virtual schools", []string{"virtual", "schools"}, flags, sampleSchema(), 5, 5, nil)
	require.NoError(t, err)
	require.Equal(t, contextretriever.WithSchemaLink, result.Strategy)
	require.NotEmpty(t, result.LSHColumns)
	require.Equal(t, result.ReducedMSchema, result.UsedMSchema)
}

func TestRetrieveWithoutSchemaLinkFallsBackToFull(t *testing.T) {
	vdb := vdbmanager.NewMockManager()
	retriever := contextretriever.NewContextRetriever(vdb, 0.9)
	flags := workspace.Flags{UseSchema: false, UseLSH: false, UseVector: false}

	result, err := retriever.Retrieve(context.Background(), "q", nil, flags, sampleSchema(), 5, 5, nil)
	require.NoError(t, err)
	require.Equal(t, contextretriever.WithoutSchemaLink, result.Strategy)
	require.Equal(t, result.FullMSchema, result.UsedMSchema)
}
