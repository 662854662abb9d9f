// Package textanalysis provides the lexical text capability the lifecycle
// engine plugs in when no embedding provider is configured: key-term
// extraction and a token-overlap similarity score.
package textanalysis

import (
	"math"
	"sort"
	"strings"
)

// Analyzer is a lexical key-term extractor and similarity scorer.
type Analyzer struct {
	stopwords map[string]bool
}

// NewAnalyzer creates an analyzer with the default English stopword set.
func NewAnalyzer() *Analyzer {
	stop := map[string]bool{}
	for _, w := range []string{
		"the", "a", "an", "and", "or", "but", "of", "to", "in", "on",
		"for", "with", "is", "are", "was", "were", "be", "been", "it",
		"this", "that", "what", "how", "why", "about", "my", "your",
	} {
		stop[w] = true
	}
	return &Analyzer{stopwords: stop}
}

// KeyTerms extracts the distinct content-bearing tokens of a text,
// lowercased and sorted for stable output.
func (a *Analyzer) KeyTerms(text string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, tok := range tokenize(text) {
		if a.stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	sort.Strings(terms)
	return terms
}

// Similarity scores how alike two texts are in [0,1], blending a
// Jaccard-style token overlap with coverage of the shorter text. Exact
// token matches count full, substring hits count partial.
func (a *Analyzer) Similarity(x, y string) float64 {
	xTokens := a.KeyTerms(x)
	yTokens := a.KeyTerms(y)
	if len(xTokens) == 0 || len(yTokens) == 0 {
		return 0
	}

	// Compare from the shorter side so "neural net" vs "neural network
	// architectures" still scores high.
	if len(yTokens) < len(xTokens) {
		xTokens, yTokens = yTokens, xTokens
		x, y = y, x
	}

	ySet := make(map[string]bool, len(yTokens))
	for _, t := range yTokens {
		ySet[t] = true
	}
	yLower := strings.ToLower(y)

	var matched int
	var weighted float64
	for _, t := range xTokens {
		if ySet[t] {
			matched++
			weighted += 1.0
		} else if strings.Contains(yLower, t) {
			matched++
			weighted += 0.7
		}
	}
	if matched == 0 {
		return 0
	}

	overlap := float64(matched)
	union := float64(len(xTokens) + len(yTokens) - matched)
	jaccard := overlap / math.Max(union, 1)
	coverage := weighted / float64(len(xTokens))

	return 0.4*jaccard + 0.6*coverage
}

// tokenize splits text into lowercase word tokens, keeping unicode words
// and dropping single characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}
