// Package tokenizer turns free text into index terms: lower-cased
// alphanumeric words, minus stop-words, reduced by a suffix stemmer. The
// same Analyzer must be used for indexing and for query terms.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is one term and its ordinal among the kept words of the text.
type Token struct {
	Term     string
	Position int
}

// Analyzer holds the normalisation rules.
type Analyzer struct {
	MinLength int
	StopWords map[string]struct{}
	Stem      bool
}

// Default is the English analyzer used when none is configured.
var Default = &Analyzer{
	MinLength: 2,
	StopWords: englishStopWords,
	Stem:      true,
}

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Tokenize is Default.Tokenize.
func Tokenize(text string) []Token {
	return Default.Tokenize(text)
}

// Tokenize splits text on non-alphanumeric runes and normalises each word.
// Positions count kept words only.
func (a *Analyzer) Tokenize(text string) []Token {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)/2)
	for _, w := range words {
		term := a.Normalize(w)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: len(tokens)})
	}
	return tokens
}

// Normalize maps a single word to its index term, or "" if the word is not
// indexed.
func (a *Analyzer) Normalize(word string) string {
	word = strings.ToLower(word)
	if len(word) < a.MinLength {
		return ""
	}
	if _, stop := a.StopWords[word]; stop {
		return ""
	}
	if a.Stem {
		word = stem(word)
	}
	return word
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

// First matching rule wins, so longer suffixes come first.
var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}
