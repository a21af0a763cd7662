// Package vectorizer builds field-weighted TF-IDF term vectors over a game corpus.
package vectorizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize lowercases text and splits it on every rune that is not a letter or digit.
// Stop words are kept. Text that is not valid UTF-8 cannot be analyzed.
func Tokenize(text string) ([]string, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrIndexing)
	}

	return strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	}), nil
}

// termFrequencies counts the tokens of a text.
func termFrequencies(text string) (map[string]int, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}

	freqs := make(map[string]int, len(tokens))
	for _, token := range tokens {
		freqs[token]++
	}
	return freqs, nil
}
