package evaluator

import (
	"github.com/pkoukk/tiktoken-go"
)

// ComplexityScorer computes the token-count complexity proxy spec §4.8
// suggests and §9 leaves underspecified ("a token-count proxy is suggested
// here as a reasonable default"), grounded on
// Tangerg-lynx/ai/go.mod's github.com/pkoukk/tiktoken-go dependency.
type ComplexityScorer struct {
	encoding *tiktoken.Tiktoken
}

// NewComplexityScorer loads the cl100k_base encoding used across the
// teacher's OpenAI-family bindings.
func NewComplexityScorer() (*ComplexityScorer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &ComplexityScorer{encoding: enc}, nil
}

// Score returns sql's token count under the loaded encoding, used for
// Selector tie-breaking (spec §4.9: "prefer lower candidate complexity").
func (s *ComplexityScorer) Score(sql string) int {
	return len(s.encoding.Encode(sql, nil, nil))
}
