// Package rutext provides the language-aware text primitives used by
// ranking and assembly: tokenization with a primitive stemmer, query
// expansion for colloquial failure verbs, and a pluggable script
// classifier for the support language.
package rutext

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\p{L}+|\d+`)

// queryExpand maps colloquial failure verbs to the wording the
// knowledge base actually uses, so "виснет" matches sections titled
// "зависает" or "обрывается".
var queryExpand = map[string][]string{
	"виснет": {"зависает", "обрывается"},
	"висне":  {"зависает", "обрывается"},
}

// Fold lowercases text and collapses ё into е, the canonical form used
// throughout the knowledge base.
func Fold(text string) string {
	return strings.ReplaceAll(strings.ToLower(text), "ё", "е")
}

// Terms returns the unique folded words of length >= 2, in order of
// first occurrence. No stemming is applied.
func Terms(text string) []string {
	words := wordRe.FindAllString(Fold(text), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// TokenSet returns the folded words of length >= 2 plus primitive
// stems: for words longer than 4 runes the form without the last rune,
// for words longer than 6 runes the form without the last two. The
// stems let inflected Russian forms overlap without a morphology
// library.
func TokenSet(text string) map[string]struct{} {
	if text == "" {
		return map[string]struct{}{}
	}
	words := wordRe.FindAllString(Fold(text), -1)
	out := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		r := []rune(w)
		if len(r) < 2 {
			continue
		}
		out[w] = struct{}{}
		if len(r) > 4 {
			out[string(r[:len(r)-1])] = struct{}{}
		}
		if len(r) > 6 {
			out[string(r[:len(r)-2])] = struct{}{}
		}
	}
	return out
}

// ExpandQuery adds knowledge-base synonyms for any token present in
// the expansion table. The input set is modified in place and returned.
func ExpandQuery(tokens map[string]struct{}) map[string]struct{} {
	for t := range tokens {
		for _, add := range queryExpand[t] {
			tokens[add] = struct{}{}
		}
	}
	return tokens
}

// OverlapCount returns the number of tokens shared by both sets.
func OverlapCount(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
