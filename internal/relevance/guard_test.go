package relevance_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mptyl/thoth-sqlcore/internal/relevance"
	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
)

func TestClassifyStrictForHighOverlap(t *testing.T) {
	corpus := []string{
		"How many schools are exclusively virtual in the district of Los Angeles",
		"The Virtual column on the schools table marks a school as fully virtual",
	}
	guard := relevance.NewGuard(corpus, []string{"schools", "virtual", "district"}, "en", "en", 0, 0)

	test := sqltest.Test{Text: "assert result has schools where virtual = 'V' in district"}
	classified := guard.Classify(test)

	require.Equal(t, sqltest.Strict, classified.Relevance)
	require.Greater(t, classified.BM25Score, 0.0)
	require.Greater(t, classified.StructuralScore, 0.0)
}

func TestClassifyIrrelevantForNoOverlap(t *testing.T) {
	corpus := []string{"How many schools are exclusively virtual"}
	guard := relevance.NewGuard(corpus, []string{"schools", "virtual"}, "en", "en", 0, 0)

	test := sqltest.Test{Text: "assert unrelated payroll totals reconcile across quarters"}
	classified := guard.Classify(test)

	require.Equal(t, sqltest.Irrelevant, classified.Relevance)
}

func TestClassifyAllIsOrderIndependent(t *testing.T) {
	corpus := []string{"How many schools are exclusively virtual in Los Angeles district"}
	guard := relevance.NewGuard(corpus, []string{"schools", "virtual", "district"}, "en", "en", 0, 0)

	tests := []sqltest.Test{
		{Text: "assert schools virtual district result"},
		{Text: "assert totally unrelated payroll text"},
	}
	reversed := []sqltest.Test{tests[1], tests[0]}

	a := guard.ClassifyAll(tests)
	b := guard.ClassifyAll(reversed)

	require.Equal(t, a[0].Relevance, b[1].Relevance)
	require.Equal(t, a[1].Relevance, b[0].Relevance)
}

func TestMorphologicallyRichLanguageSwitchesWeights(t *testing.T) {
	corpus := []string{"Ile jest szkol w dzielnicy"}
	guard := relevance.NewGuard(corpus, []string{"szkoly", "dzielnica"}, "pl", "pl", 0, 0)

	test := sqltest.Test{Text: "assert szkoly dzielnica result"}
	classified := guard.Classify(test)
	require.NotEqual(t, sqltest.RelevanceClass(""), classified.Relevance)
}
