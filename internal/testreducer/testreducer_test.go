package testreducer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/internal/testreducer"
)

func TestExactDedupNormalizesWhitespaceAndCase(t *testing.T) {
	tests := []sqltest.Test{
		{Text: "Assert  Result Has  Status = 'OK'"},
		{Text: "assert result has status = 'ok'"},
		{Text: "assert something else entirely"},
	}
	deduped := testreducer.ExactDedup(tests)
	require.Len(t, deduped, 2)
}

func TestReduceSkipsWhenCountAtOrBelowThreshold(t *testing.T) {
	tests := make([]sqltest.Test, 5)
	for i := range tests {
		tests[i] = sqltest.Test{Text: "unique test number distinct content " + string(rune('a'+i))}
	}
	reduced := testreducer.Reduce(tests, 3)
	require.Len(t, reduced, 5)
}

func TestReduceCollapsesNearDuplicatesAboveThreshold(t *testing.T) {
	tests := []sqltest.Test{
		{Text: "assert schools table has virtual column equal V"},
		{Text: "assert schools table has virtual column equal to V"},
		{Text: "assert schools table has virtual column equal V value"},
		{Text: "assert districts table has name column populated"},
		{Text: "assert districts table name column is not null"},
		{Text: "assert completely unrelated payroll reconciliation totals"},
	}
	reduced := testreducer.Reduce(tests, 2)
	require.Less(t, len(reduced), len(tests))
}

func TestReduceRequiresMultipleGenerators(t *testing.T) {
	tests := make([]sqltest.Test, 6)
	for i := range tests {
		tests[i] = sqltest.Test{Text: "assert schools table has virtual column equal V " + string(rune('a'+i))}
	}
	reduced := testreducer.Reduce(tests, 1)
	require.Len(t, reduced, 6)
}
