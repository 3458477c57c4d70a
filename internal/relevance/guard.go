// Package relevance implements RelevanceGuard (spec §4.7): language-aware
// BM25 plus structural-anchor scoring that classifies generated tests as
// STRICT, WEAK, or IRRELEVANT.
package relevance

import (
	"regexp"
	"strings"

	"github.com/mptyl/thoth-sqlcore/internal/sqltest"
)

const (
	defaultWeightBM25   = 0.6
	defaultWeightStruct = 0.4
	richWeightBM25      = 0.45
	richWeightStruct    = 0.55

	thresholdStrict = 0.6
	thresholdWeak   = 0.3

	// structuralScoreScale caps the raw anchor count used to normalize the
	// structural score into [0, 1]; spec §4.7 does not fix this constant.
	structuralScoreScale = 3.0
)

// morphologicallyRich is the language set from spec §4.7 that switches the
// BM25/structural weight balance when structural hits exist.
var morphologicallyRich = map[string]struct{}{
	"fi": {}, "hu": {}, "tr": {}, "el": {}, "ru": {}, "uk": {}, "pl": {},
	"cs": {}, "sk": {}, "bg": {}, "ro": {}, "sl": {}, "hr": {}, "sr": {},
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Guard classifies tests against a fixed corpus (question + evidence) and
// schema vocabulary for one request.
type Guard struct {
	corpus            *bm25Corpus
	schemaIdentifiers map[string]struct{}
	questionLanguage  string
	databaseLanguage  string
	weightBM25        float64
	weightStruct      float64
}

// NewGuard builds a Guard for one request. corpusDocs is the question
// followed by retrieved evidence texts; schemaIdentifiers is the set of
// table/column names (lower-cased) the structural scorer recognizes.
// weightBM25/weightStruct are the base blend weights from spec §4.7
// (RELEVANCE_W_BM25/RELEVANCE_W_STRUCT); a zero pair falls back to
// defaultWeightBM25/defaultWeightStruct, so existing callers that don't
// carry a configured weight keep their prior behavior.
func NewGuard(corpusDocs []string, schemaIdentifiers []string, questionLanguage, databaseLanguage string, weightBM25, weightStruct float64) *Guard {
	stopwords := unionStopwords(questionLanguage, databaseLanguage)

	idents := make(map[string]struct{}, len(schemaIdentifiers))
	for _, id := range schemaIdentifiers {
		idents[strings.ToLower(id)] = struct{}{}
	}

	if weightBM25 <= 0 && weightStruct <= 0 {
		weightBM25, weightStruct = defaultWeightBM25, defaultWeightStruct
	}

	return &Guard{
		weightBM25:        weightBM25,
		weightStruct:      weightStruct,
		corpus:            newBM25Corpus(corpusDocs, stopwords),
		schemaIdentifiers: idents,
		questionLanguage:  questionLanguage,
		databaseLanguage:  databaseLanguage,
	}
}

// Classify scores t.Text against the corpus and schema vocabulary, setting
// t.BM25Score, t.StructuralScore, and t.Relevance. It returns the updated
// copy; callers assign it back into their test slice.
func (g *Guard) Classify(t sqltest.Test) sqltest.Test {
	queryTokens := normalizeTokens(t.Text)
	raw := g.corpus.score(queryTokens)
	t.BM25Score = normalizeScore(raw)
	t.StructuralScore = g.structuralScore(t.Text)

	wBM25, wStruct := g.weightBM25, g.weightStruct
	if _, rich := morphologicallyRich[g.questionLanguage]; rich && t.StructuralScore > 0 {
		wBM25, wStruct = richWeightBM25, richWeightStruct
	}

	combined := wBM25*t.BM25Score + wStruct*t.StructuralScore
	switch {
	case combined >= thresholdStrict:
		t.Relevance = sqltest.Strict
	case combined >= thresholdWeak:
		t.Relevance = sqltest.Weak
	default:
		t.Relevance = sqltest.Irrelevant
	}
	return t
}

// ClassifyAll classifies every test independently; permuting the input
// order never changes any individual classification (spec §8 stability
// property), since each test is scored against the fixed corpus alone.
func (g *Guard) ClassifyAll(tests []sqltest.Test) []sqltest.Test {
	out := make([]sqltest.Test, len(tests))
	for i, t := range tests {
		out[i] = g.Classify(t)
	}
	return out
}

func (g *Guard) structuralScore(testText string) float64 {
	matches := identifierPattern.FindAllString(testText, -1)
	hits := 0
	for _, m := range matches {
		if _, ok := g.schemaIdentifiers[strings.ToLower(m)]; ok {
			hits++
		}
	}
	score := float64(hits) / structuralScoreScale
	if score > 1.0 {
		score = 1.0
	}
	return score
}
