package relevance

// stopwordsByLanguage is a compact, hand-curated stopword list per
// ISO-639-1 code. It is intentionally small: RelevanceGuard only needs it
// to keep high-frequency function words from diluting BM25 term overlap,
// not to be an exhaustive linguistic resource.
var stopwordsByLanguage = map[string][]string{
	"en": {"the", "a", "an", "of", "in", "on", "for", "to", "is", "are", "was", "were", "and", "or", "with", "by", "that", "this"},
	"it": {"il", "lo", "la", "i", "gli", "le", "di", "a", "da", "in", "con", "su", "per", "tra", "fra", "e", "che"},
	"fr": {"le", "la", "les", "un", "une", "de", "des", "du", "et", "en", "dans", "pour", "que", "qui"},
	"es": {"el", "la", "los", "las", "un", "una", "de", "en", "y", "que", "para", "por"},
	"de": {"der", "die", "das", "ein", "eine", "und", "in", "von", "zu", "mit", "fur"},
	"pl": {"i", "w", "na", "z", "do", "ze", "o", "the"},
	"ru": {"i", "v", "na", "s", "k", "o", "chto"},
}

// unionStopwords returns the union of stopwords for questionLanguage and
// databaseLanguage, defaulting to English when a code is unrecognized
// (spec §4.7).
func unionStopwords(questionLanguage, databaseLanguage string) map[string]struct{} {
	set := make(map[string]struct{})
	addStopwords(set, questionLanguage)
	if databaseLanguage != questionLanguage {
		addStopwords(set, databaseLanguage)
	}
	if len(set) == 0 {
		addStopwords(set, "en")
	}
	return set
}

func addStopwords(set map[string]struct{}, lang string) {
	words, ok := stopwordsByLanguage[lang]
	if !ok {
		words = stopwordsByLanguage["en"]
	}
	for _, w := range words {
		set[w] = struct{}{}
	}
}
