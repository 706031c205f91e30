// Package match decides whether a free-text guess names the hidden subject.
package match

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinSubstringLen is the shortest compact string that may match by
	// containment.
	MinSubstringLen = 3
	// SuggestThreshold is the similarity at or above which an unmatched
	// guess gets a did-you-mean suggestion.
	SuggestThreshold = 0.75
)

var articles = []string{"the ", "a ", "an "}

// Normalize lowercases, strips diacritics and punctuation, collapses
// whitespace and drops one leading article.
func Normalize(s string) string {
	s = strings.ToLower(s)

	// Transformers keep state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")

	for _, a := range articles {
		if rest, ok := strings.CutPrefix(s, a); ok {
			return rest
		}
	}
	return s
}

// compact removes the remaining spaces so "jay z" and "jay-z" compare equal.
func compact(normalized string) string {
	return strings.ReplaceAll(normalized, " ", "")
}

// Result is the local verdict for one guess.
type Result struct {
	Matched    bool
	Similarity float64
	// Suggestion is the candidate the guess most likely meant, set only when
	// the guess did not match but came close.
	Suggestion string
	Normalized string
}

// Match checks guess against the target and its aliases: exact equality
// after normalization, or a word-aligned containment in either direction.
func Match(guess, target string, aliases []string) Result {
	g := Normalize(guess)
	res := Result{Normalized: g}
	gc := compact(g)
	if gc == "" {
		return res
	}

	candidates := append([]string{target}, aliases...)
	for _, cand := range candidates {
		c := Normalize(cand)
		cc := compact(c)
		if cc == "" {
			continue
		}
		if gc == cc || contains(g, c) {
			return Result{Matched: true, Similarity: 1, Normalized: g}
		}

		sim := similarity(gc, cc)
		if sim > res.Similarity {
			res.Similarity = sim
			res.Suggestion = cand
		}
	}

	if res.Similarity < SuggestThreshold || utf8.RuneCountInString(gc) < MinSubstringLen {
		res.Suggestion = ""
	}
	return res
}

// stopwords never match on their own, however long the candidate is.
var stopwords = map[string]bool{
	"the": true, "and": true, "of": true, "da": true, "de": true, "del": true,
	"di": true, "la": true, "le": true, "van": true, "von": true,
}

// contains reports a non-trivial, word-aligned containment in either
// direction. The contained side must be at least MinSubstringLen compact
// characters and not a lone stopword.
func contains(guess, cand string) bool {
	return nonTrivial(cand) && containsWords(guess, cand) ||
		nonTrivial(guess) && containsWords(cand, guess)
}

func nonTrivial(normalized string) bool {
	return utf8.RuneCountInString(compact(normalized)) >= MinSubstringLen && !stopwords[normalized]
}

func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

func similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// EnsureAliases returns aliases deduplicated by normalized form, with the
// normalized target first.
func EnsureAliases(target string, aliases []string) []string {
	seen := make(map[string]bool, len(aliases)+1)
	out := make([]string, 0, len(aliases)+1)

	add := func(s string) {
		n := Normalize(s)
		if n == "" || seen[compact(n)] {
			return
		}
		seen[compact(n)] = true
		out = append(out, s)
	}

	add(Normalize(target))
	for _, a := range aliases {
		add(strings.TrimSpace(a))
	}
	return out
}
