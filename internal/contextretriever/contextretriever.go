package contextretriever

import (
	"context"
	"fmt"

	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// SchemaLinkStrategy is RequestState.schema_link_strategy (spec §3).
type SchemaLinkStrategy string

const (
	WithSchemaLink    SchemaLinkStrategy = "WITH_SCHEMA_LINK"
	WithoutSchemaLink SchemaLinkStrategy = "WITHOUT_SCHEMA_LINK"
)

// DecideSchemaLinkStrategy is a pure function of flags and retrieval
// results (spec §9's "avoid hidden global toggles" design note): it is
// WITH_SCHEMA_LINK iff the use_schema flag is set and either LSH or the
// vector search produced at least one schema element.
func DecideSchemaLinkStrategy(useSchema bool, lshHits, vectorSchemaHits int) SchemaLinkStrategy {
	if useSchema && (lshHits > 0 || vectorSchemaHits > 0) {
		return WithSchemaLink
	}
	return WithoutSchemaLink
}

// Result is everything ContextRetriever contributes to RequestState.
type Result struct {
	Evidence       []vdbmanager.Hit
	GoldExamples   []vdbmanager.QSQLExample
	LSHColumns     []ColumnRef
	FullMSchema    string
	ReducedMSchema string
	UsedMSchema    string
	Strategy       SchemaLinkStrategy
}

// ContextRetriever implements spec §4.6.
type ContextRetriever struct {
	vdb          vdbmanager.Manager
	lshThreshold float64
}

// NewContextRetriever builds a ContextRetriever over vdb. A non-positive
// lshThreshold falls back to DefaultLSHThreshold.
func NewContextRetriever(vdb vdbmanager.Manager, lshThreshold float64) *ContextRetriever {
	if lshThreshold <= 0 {
		lshThreshold = DefaultLSHThreshold
	}
	return &ContextRetriever{vdb: vdb, lshThreshold: lshThreshold}
}

// Retrieve runs evidence/exemplar retrieval, LSH column matching, and
// mschema construction for one request.
func (r *ContextRetriever) Retrieve(
	ctx context.Context,
	translatedQuestion string,
	keywords []string,
	flags workspace.Flags,
	schema Schema,
	evidenceK, exampleK int,
	filters map[string]string,
) (Result, error) {
	var result Result

	if flags.UseVector {
		evidence, err := r.vdb.SearchEvidence(ctx, translatedQuestion, evidenceK, filters)
		if err != nil {
			return Result{}, fmt.Errorf("contextretriever: search evidence: %w", err)
		}
		result.Evidence = evidence

		examples, err := r.vdb.SearchSQLExamples(ctx, translatedQuestion, exampleK)
		if err != nil {
			return Result{}, fmt.Errorf("contextretriever: search sql examples: %w", err)
		}
		result.GoldExamples = examples
	}

	if flags.UseLSH {
		result.LSHColumns = MatchColumns(schema, keywords, r.lshThreshold)
	}

	result.FullMSchema = RenderFullMSchema(schema)

	vectorSchemaHits := 0
	if flags.UseVector {
		vectorSchemaHits = len(result.GoldExamples)
	}
	result.Strategy = DecideSchemaLinkStrategy(flags.UseSchema, len(result.LSHColumns), vectorSchemaHits)

	if result.Strategy == WithSchemaLink {
		result.ReducedMSchema = RenderReducedMSchema(schema, result.LSHColumns)
		result.UsedMSchema = result.ReducedMSchema
		if result.UsedMSchema == "" {
			result.UsedMSchema = result.FullMSchema
		}
	} else {
		result.UsedMSchema = result.FullMSchema
	}

	return result, nil
}
