// Package index builds the term-weighting model used for relevance
// ranking: a unigram+bigram vocabulary with smoothed inverse document
// frequency weights and L2-normalized sparse document vectors.
package index

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)

// Normalize lowercases the text, collapses non-alphanumeric runs to
// single spaces and trims redundant whitespace. Queries and documents
// go through the same pipeline so their feature spaces line up.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = nonAlnum.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// Tokenize splits normalized text into tokens.
func Tokenize(text string) []string {
	return strings.Fields(Normalize(text))
}

// Terms expands tokens into indexable terms: stop-word-filtered
// unigrams plus bigrams over the surviving tokens.
func Terms(tokens []string) []string {
	filtered := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		filtered = append(filtered, tok)
	}

	terms := make([]string, 0, 2*len(filtered))
	terms = append(terms, filtered...)
	for i := 0; i+1 < len(filtered); i++ {
		terms = append(terms, filtered[i]+" "+filtered[i+1])
	}
	return terms
}
