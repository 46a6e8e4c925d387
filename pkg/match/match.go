package match

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Threshold is the minimum similarity for two tokens to count as a fuzzy
// match.
const Threshold = 0.8

// Similarity returns a normalized edit-distance ratio between two tokens.
// Identical tokens score 1.0, completely different tokens approach 0.0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// TokensMatch reports whether two tokens are equal or similar enough to
// count as a match.
func TokensMatch(a, b string) bool {
	return a == b || Similarity(a, b) >= Threshold
}

// Score counts how many query tokens match a candidate keyword set. Each
// query token contributes at most one match, even when it is close to
// several candidate keywords.
func Score(query, candidate []string) int {
	count := 0
	for _, q := range query {
		for _, kw := range candidate {
			if TokensMatch(q, kw) {
				count++
				break
			}
		}
	}
	return count
}

// Match pairs a candidate's position in the input slice with its score.
type Match struct {
	Index int
	Score int
}

// Rank scores every candidate keyword set against the query and returns the
// matches ordered by score, highest first. Zero-score candidates are
// omitted. Candidates with equal scores keep their input order.
func Rank(query []string, candidates [][]string) []Match {
	matches := make([]Match, 0, len(candidates))
	for i, cand := range candidates {
		if score := Score(query, cand); score > 0 {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Overlap scores two whole strings by substring containment. When either
// lowercased string contains the other, the score is the ratio of the query
// length to the candidate length; unrelated strings score zero. Overlap and
// Score are separate strategies and are never combined in one ranking.
func Overlap(query, candidate string) float64 {
	q := strings.ToLower(query)
	c := strings.ToLower(candidate)
	if q == "" || c == "" {
		return 0
	}
	if !strings.Contains(q, c) && !strings.Contains(c, q) {
		return 0
	}
	return float64(utf8.RuneCountInString(q)) / float64(utf8.RuneCountInString(c))
}

// Tokenize lowercases free text and splits it into alphanumeric runs,
// dropping punctuation and whitespace.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
