package relevance

import (
	"math"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var caseFolder = cases.Fold()

// normalizeTokens applies Unicode NFKC normalization followed by case
// folding (spec §4.7), then splits on non-letter/non-digit runs, using
// golang.org/x/text since Go's standard library has no case-folding
// primitive beyond simple ASCII strings.ToLower (see DESIGN.md).
func normalizeTokens(text string) []string {
	folded := caseFolder.String(norm.NFKC.String(text))
	fields := wordSplit.Split(folded, -1)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// corpusDoc is one BM25 corpus document: its token multiset and length.
type corpusDoc struct {
	termFreq map[string]int
	length   int
}

// bm25Corpus indexes a set of documents (the question plus retrieved
// evidence passages, spec §4.7) for repeated BM25 queries against them.
type bm25Corpus struct {
	docs      []corpusDoc
	docFreq   map[string]int
	avgDocLen float64
}

func newBM25Corpus(documents []string, stopwords map[string]struct{}) *bm25Corpus {
	corpus := &bm25Corpus{docFreq: make(map[string]int)}
	var totalLen int

	for _, doc := range documents {
		tokens := filterStopwords(normalizeTokens(doc), stopwords)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		corpus.docs = append(corpus.docs, corpusDoc{termFreq: tf, length: len(tokens)})
		totalLen += len(tokens)
		for tok := range tf {
			corpus.docFreq[tok]++
		}
	}

	if len(corpus.docs) > 0 {
		corpus.avgDocLen = float64(totalLen) / float64(len(corpus.docs))
	}
	return corpus
}

func filterStopwords(tokens []string, stopwords map[string]struct{}) []string {
	if len(stopwords) == 0 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, skip := stopwords[tok]; !skip {
			out = append(out, tok)
		}
	}
	return out
}

func (c *bm25Corpus) idf(term string) float64 {
	n := float64(len(c.docs))
	df := float64(c.docFreq[term])
	if n == 0 {
		return 0
	}
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// score returns the best single-document BM25 score for query across the
// corpus: the document most relevant to the query, rather than a sum
// across documents, since a test typically echoes one evidence passage
// (an Open Question decision, see DESIGN.md).
func (c *bm25Corpus) score(queryTokens []string) float64 {
	var best float64
	for _, doc := range c.docs {
		if doc.length == 0 {
			continue
		}
		var sum float64
		for _, term := range queryTokens {
			tf := float64(doc.termFreq[term])
			if tf == 0 {
				continue
			}
			idf := c.idf(term)
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(doc.length)/c.avgDocLen)
			sum += idf * tf * (bm25K1 + 1) / denom
		}
		if sum > best {
			best = sum
		}
	}
	return best
}

// normalizeScore squashes an unbounded BM25 score into [0, 1) so it can be
// combined with the structural score against fixed thresholds.
func normalizeScore(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (raw + 1.0)
}
