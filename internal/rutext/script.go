package rutext

import "unicode"

// Script classifies whether a rune belongs to the alphabet expected
// for the support language. It is pluggable so the gibberish and
// line-merge heuristics are not hard-coded to any specific alphabet.
type Script interface {
	Name() string
	Matches(r rune) bool
}

// Cyrillic is the script classifier for Russian-language support.
type Cyrillic struct{}

func (Cyrillic) Name() string { return "cyrillic" }

func (Cyrillic) Matches(r rune) bool { return unicode.Is(unicode.Cyrillic, r) }

// ContainsScript reports whether any rune of text belongs to the
// expected script.
func ContainsScript(s Script, text string) bool {
	for _, r := range text {
		if s.Matches(r) {
			return true
		}
	}
	return false
}
