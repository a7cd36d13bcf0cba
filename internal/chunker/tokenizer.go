// Package chunker splits structured documents into token-bounded chunks with provenance.
package chunker

import "strings"

// Tokenizer counts text length in the embedding backend's token units.
type Tokenizer interface {
	Count(text string) int
}

// WordTokenizer approximates backend tokens by whitespace-separated words.
// Remote embedding backends do not expose their tokenizers; a word count is
// a stable lower bound and keeps chunk budgets deterministic.
type WordTokenizer struct{}

// Count returns the number of whitespace-separated words in text.
func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}
