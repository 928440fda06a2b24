package assembler

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	manyBlankRe  = regexp.MustCompile(`\n{3,}`)
	endsPunctRe  = regexp.MustCompile(`[.!?:;]\s*$`)
	sentenceEnds = ".!?"
)

// Normalize cleans up chunk text before it enters a prompt: collapses
// blank-line runs, drops consecutive duplicate lines and glues back
// line fragments produced by hard PDF/HTML wraps.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = manyBlankRe.ReplaceAllString(text, "\n\n")

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if len(out) > 0 && line != "" && line == out[len(out)-1] {
			continue
		}
		if len(out) > 0 && isFragment(out[len(out)-1], line) {
			prev := strings.TrimRight(out[len(out)-1], " \t")
			out[len(out)-1] = prev + fragmentSep(prev) + strings.TrimLeft(line, " \t")
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// isFragment reports whether line is the continuation of prev: it
// starts with a lowercase letter or digit while prev carries no
// terminal punctuation.
func isFragment(prev, line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || strings.TrimSpace(prev) == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(trimmed)
	if !unicode.IsLower(r) && !unicode.IsDigit(r) {
		return false
	}
	return !endsPunctRe.MatchString(prev)
}

// fragmentSep picks the glue between a wrapped line and its
// continuation: nothing when the previous line ends mid-word, a single
// space otherwise.
func fragmentSep(prev string) string {
	r, size := utf8.DecodeLastRuneInString(prev)
	if size > 0 && unicode.IsLetter(r) {
		return ""
	}
	return " "
}

// SafeTrim cuts text down to at most maxChars runes without breaking a
// word. It looks back up to 200 runes from the limit for, in order of
// preference, a sentence end, a newline or a space.
func SafeTrim(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	start := maxChars - 200
	if start < 0 {
		start = 0
	}
	window := runes[start:maxChars]

	cut := -1
	for i := len(window) - 1; i >= 1; i-- {
		if (window[i] == ' ' || window[i] == '\n') && strings.ContainsRune(sentenceEnds, window[i-1]) {
			cut = start + i
			break
		}
	}
	if cut < 0 {
		for i := len(window) - 1; i >= 0; i-- {
			if window[i] == '\n' {
				cut = start + i
				break
			}
		}
	}
	if cut < 0 {
		for i := len(window) - 1; i >= 0; i-- {
			if window[i] == ' ' {
				cut = start + i
				break
			}
		}
	}
	if cut <= 0 {
		cut = maxChars
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n")
}
