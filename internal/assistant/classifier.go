// Package assistant answers free-text preparedness questions with tips for
// the detected hazard and the latest public updates for it.
package assistant

import (
	"strings"
	"unicode"
)

type Prediction struct {
	Intent     string
	Confidence float64
}

// Classifier maps a message to intents, most likely first. Implementations
// may be statistical models; KeywordClassifier is the built-in fallback.
type Classifier interface {
	Classify(text string) []Prediction
}

const keywordConfidence = 0.9

type KeywordClassifier struct {
	rules []rule
}

type rule struct {
	tag      string
	keywords [][]string
}

var _ Classifier = (*KeywordClassifier)(nil)

func NewKeywordClassifier(c Catalog) *KeywordClassifier {
	k := &KeywordClassifier{}
	for _, in := range c.Intents {
		r := rule{tag: in.Tag}
		for _, kw := range in.Keywords {
			if toks := tokenize(kw); len(toks) > 0 {
				r.keywords = append(r.keywords, toks)
			}
		}
		k.rules = append(k.rules, r)
	}
	return k
}

// Classify returns one prediction per matching intent in catalog order.
// Keywords match whole words, so "hi" does not fire on "which".
func (k *KeywordClassifier) Classify(text string) []Prediction {
	toks := tokenize(text)
	if len(toks) == 0 {
		return nil
	}
	var out []Prediction
	for _, r := range k.rules {
		for _, kw := range r.keywords {
			if containsSeq(toks, kw) {
				out = append(out, Prediction{Intent: r.tag, Confidence: keywordConfidence})
				break
			}
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsSeq(toks, seq []string) bool {
	for i := 0; i+len(seq) <= len(toks); i++ {
		match := true
		for j, s := range seq {
			if toks[i+j] != s {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
