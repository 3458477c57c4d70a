package contextretriever

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultLSHThreshold is the minimum estimated Jaccard similarity (spec
// §4.6) between a keyword token set and a column's tokenized identifier for
// that column to be treated as an LSH hit. Not specified by spec §4.6
// beyond "≥ threshold"; recorded as an Open Question decision in DESIGN.md.
const DefaultLSHThreshold = 0.3

const minHashFunctions = 32

var tokenSplit = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// tokenize splits an identifier or phrase into lower-cased tokens, treating
// snake_case and camelCase boundaries as separators.
func tokenize(s string) map[string]struct{} {
	spaced := tokenSplit.ReplaceAllString(s, " ")
	var sb strings.Builder
	runes := []rune(spaced)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
			sb.WriteRune(' ')
		}
		sb.WriteRune(r)
	}
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(sb.String())) {
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// minHasher computes fixed-size MinHash signatures approximating Jaccard
// similarity between token sets, hand-rolled on hash/fnv since no
// LSH/minhash library appears anywhere in the retrieval pack (see
// DESIGN.md).
type minHasher struct {
	seeds [minHashFunctions]uint64
}

func newMinHasher() *minHasher {
	h := &minHasher{}
	for i := range h.seeds {
		h.seeds[i] = uint64(i)*0x9E3779B97F4A7C15 + 0xFF51AFD7ED558CCD
	}
	return h
}

func (h *minHasher) signature(tokens map[string]struct{}) [minHashFunctions]uint64 {
	var sig [minHashFunctions]uint64
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for tok := range tokens {
		base := fnvHash(tok)
		for i, seed := range h.seeds {
			v := mix(base ^ seed)
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

func estimateJaccard(a, b [minHashFunctions]uint64) float64 {
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func mix(v uint64) uint64 {
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return v
}

// MatchColumns returns every (table, column) whose tokenized identifier has
// an estimated Jaccard similarity to the keyword token set at or above
// threshold, ordered by descending similarity.
func MatchColumns(schema Schema, keywords []string, threshold float64) []ColumnRef {
	hasher := newMinHasher()

	keywordTokens := make(map[string]struct{})
	for _, kw := range keywords {
		for tok := range tokenize(kw) {
			keywordTokens[tok] = struct{}{}
		}
	}
	if len(keywordTokens) == 0 {
		return nil
	}
	keywordSig := hasher.signature(keywordTokens)

	type scored struct {
		ref   ColumnRef
		score float64
	}
	var candidates []scored

	for _, t := range schema.Tables {
		for _, c := range t.Columns {
			colSig := hasher.signature(tokenize(t.Name + " " + c.Name))
			score := estimateJaccard(keywordSig, colSig)
			if score >= threshold {
				candidates = append(candidates, scored{ref: ColumnRef{Table: t.Name, Column: c.Name}, score: score})
			}
		}
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j-1].score < candidates[j].score; j-- {
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
		}
	}

	refs := make([]ColumnRef, len(candidates))
	for i, c := range candidates {
		refs[i] = c.ref
	}
	return refs
}
