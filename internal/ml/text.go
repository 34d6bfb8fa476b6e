package ml

import (
	"regexp"
	"strings"
)

// stopWords is the usual short English function-word list; these terms carry
// no class signal and would otherwise dominate the term counts.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "about", "above", "after", "again", "all", "am", "an", "and",
		"any", "are", "as", "at", "be", "because", "been", "before", "being",
		"below", "between", "both", "but", "by", "can", "did", "do", "does",
		"doing", "down", "during", "each", "few", "for", "from", "further",
		"had", "has", "have", "having", "he", "her", "here", "hers", "him",
		"his", "how", "if", "in", "into", "is", "it", "its", "just", "me",
		"more", "most", "my", "no", "nor", "not", "now", "of", "off", "on",
		"once", "only", "or", "other", "our", "out", "over", "own", "same",
		"she", "so", "some", "such", "than", "that", "the", "their", "them",
		"then", "there", "these", "they", "this", "those", "through", "to",
		"too", "under", "until", "up", "very", "was", "we", "were", "what",
		"when", "where", "which", "while", "who", "whom", "why", "will",
		"with", "you", "your", "yours",
	} {
		stopWords[w] = struct{}{}
	}
}

var wordPattern = regexp.MustCompile(`[a-z0-9]{2,}`)

// preprocess lowercases and collapses whitespace, matching how training data
// is normalized.
func preprocess(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// tokenize extracts stop-filtered unigrams plus bigrams over the filtered
// sequence. Bigrams use a single space joiner so they can live in the same
// vocabulary as unigrams.
func tokenize(text string) []string {
	words := wordPattern.FindAllString(preprocess(text), -1)

	filtered := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			filtered = append(filtered, w)
		}
	}

	terms := make([]string, 0, len(filtered)*2)
	terms = append(terms, filtered...)
	for i := 0; i+1 < len(filtered); i++ {
		terms = append(terms, filtered[i]+" "+filtered[i+1])
	}
	return terms
}

// termCounts builds the sparse term-frequency map of a document.
func termCounts(text string) map[string]int {
	counts := map[string]int{}
	for _, term := range tokenize(text) {
		counts[term]++
	}
	return counts
}
