// Package sqltest holds the Test and Candidate domain records shared across
// relevance, testreducer, evaluator, selector, and pipeline, so those
// packages depend on one small, import-cycle-free type definition instead
// of on each other.
package sqltest

// RelevanceClass is a test's RelevanceGuard classification (spec §4.7).
type RelevanceClass string

const (
	Strict     RelevanceClass = "STRICT"
	Weak       RelevanceClass = "WEAK"
	Irrelevant RelevanceClass = "IRRELEVANT"
)

// Test is one generated test assertion (spec §3).
type Test struct {
	Text             string
	ExpectedBehavior string
	EvidenceCritical bool
	Relevance        RelevanceClass
	BM25Score        float64
	StructuralScore  float64
}

// SQLCandidate is one generated SQL candidate plus its generation metadata
// (spec §3 generated_sqls entry: text + generator-level + generation-time).
type SQLCandidate struct {
	Raw             string
	Normalized      string
	ProbeOK         bool
	ProbeError      string
	GeneratorLevel  string
	GenerationIndex int
	Complexity      int
}
