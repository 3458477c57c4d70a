// Package testreducer collapses generated tests after exact-match
// deduplication (spec §4.1 P4 / §4.7's "C7" summary), grounded on
// Tangerg-lynx/ai/rag/document_refiner_deduplication.go's use of
// pkg/sets.HashSet for ID-based dedup, adapted here to whitespace+casefold
// normalized test text and extended with a near-duplicate collapse pass.
package testreducer

import (
	"regexp"
	"strings"

	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
	"github.com/mptyl/thoth-sqlcore/pkg/sets"
)

// NearDuplicateCountThreshold is the test-count above which near-duplicate
// collapse runs (spec §4.1 P4: "If count > 5 and multiple generators
// configured").
const NearDuplicateCountThreshold = 5

// NearDuplicateSimilarity is the token-Jaccard similarity at or above which
// two tests are treated as near-duplicates. Not fixed by spec §4.7; chosen
// as a conservative default and recorded as an Open Question decision in
// DESIGN.md.
const NearDuplicateSimilarity = 0.8

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeKey(text string) string {
	return strings.Join(strings.Fields(whitespaceRun.ReplaceAllString(strings.ToLower(text), " ")), " ")
}

// ExactDedup removes tests whose whitespace-and-casefold-normalized text
// has already been seen, keeping the first occurrence's ordering.
func ExactDedup(tests []sqltest.Test) []sqltest.Test {
	seen := sets.NewHashSet[string]()
	out := make([]sqltest.Test, 0, len(tests))
	for _, t := range tests {
		if seen.Add(normalizeKey(t.Text)) {
			out = append(out, t)
		}
	}
	return out
}

// Reduce runs exact dedup, then collapses near-duplicates when the
// resulting count exceeds NearDuplicateCountThreshold and more than one
// generator produced the input (spec §4.1 P4).
func Reduce(tests []sqltest.Test, generatorCount int) []sqltest.Test {
	deduped := ExactDedup(tests)
	if len(deduped) <= NearDuplicateCountThreshold || generatorCount <= 1 {
		return deduped
	}
	return collapseNearDuplicates(deduped)
}

func collapseNearDuplicates(tests []sqltest.Test) []sqltest.Test {
	kept := make([]sqltest.Test, 0, len(tests))
	keptTokens := make([]map[string]struct{}, 0, len(tests))

	for _, t := range tests {
		tokens := tokenSet(t.Text)
		duplicate := false
		for _, existing := range keptTokens {
			if jaccard(tokens, existing) >= NearDuplicateSimilarity {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, t)
			keptTokens = append(keptTokens, tokens)
		}
	}
	return kept
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
