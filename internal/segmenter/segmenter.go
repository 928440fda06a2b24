// Package segmenter splits normalized document text into ordered,
// semantically coherent chunks with bounded size and controlled
// overlap. Paragraph boundaries are preferred, then sentence
// boundaries; cuts never land inside a word.
package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// lookAhead is the window beyond the size limit scanned for a
// sentence terminator before falling back to a whitespace cut.
const lookAhead = 100

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)

// Segmenter accumulates paragraphs up to a size limit, falling back to
// sentence-level splitting for oversized paragraphs, and merges
// undersized chunks into their neighbors.
type Segmenter struct {
	maxSize int
	overlap int
	minLen  int
}

// New creates a segmenter. maxSize and minLen are in characters;
// overlap is clamped to at most half of maxSize.
func New(maxSize, overlap, minLen int) *Segmenter {
	if maxSize <= 0 {
		maxSize = 1400
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > maxSize/2 {
		overlap = maxSize / 2
	}
	if minLen < 0 {
		minLen = 0
	}
	return &Segmenter{maxSize: maxSize, overlap: overlap, minLen: minLen}
}

// unit is one accumulable piece: a paragraph, a sentence, or a forced
// cut of an oversized sentence. sep is the separator that precedes the
// unit when it joins a non-empty buffer.
type unit struct {
	text string
	sep  string
}

// Segment splits text into ordered, non-empty, whitespace-trimmed
// chunks. Empty or whitespace-only input yields nil.
func (s *Segmenter) Segment(text string) []string {
	text = strings.TrimSpace(normalizeNewlines(text))
	if text == "" {
		return nil
	}

	units := s.buildUnits(text)

	var chunks []string
	buf := ""
	fresh := false
	for _, u := range units {
		if buf == "" {
			buf = u.text
		} else {
			buf += u.sep + u.text
		}
		fresh = true
		if utf8.RuneCountInString(buf) >= s.maxSize {
			chunks = append(chunks, strings.TrimSpace(buf))
			buf = s.overlapSeed(buf)
			fresh = false
		}
	}
	if fresh {
		if t := strings.TrimSpace(buf); t != "" {
			chunks = append(chunks, t)
		}
	}

	return s.mergeShort(chunks)
}

func (s *Segmenter) buildUnits(text string) []unit {
	var units []unit
	for _, p := range splitParagraphs(text) {
		if utf8.RuneCountInString(p) <= s.maxSize {
			units = append(units, unit{text: p, sep: "\n\n"})
			continue
		}
		sep := "\n\n"
		for _, sent := range splitSentences(p) {
			if utf8.RuneCountInString(sent) <= s.maxSize {
				units = append(units, unit{text: sent, sep: sep})
			} else {
				for _, piece := range s.cutLong(sent) {
					units = append(units, unit{text: piece, sep: sep})
					sep = " "
				}
			}
			sep = " "
		}
	}
	return units
}

// overlapSeed returns the trailing overlap characters of a flushed
// chunk, left-trimmed to a word boundary, to seed the next buffer.
func (s *Segmenter) overlapSeed(chunk string) string {
	if s.overlap == 0 {
		return ""
	}
	r := []rune(chunk)
	if len(r) <= s.overlap {
		return ""
	}
	seed := string(r[len(r)-s.overlap:])
	i := strings.IndexAny(seed, " \t\n")
	if i < 0 {
		return ""
	}
	return strings.TrimLeft(seed[i:], " \t\n")
}

// cutLong splits a sentence that alone exceeds maxSize. Each cut lands
// at the last sentence terminator within the look-ahead window beyond
// the limit, else at the last whitespace before the limit, else at the
// limit itself (only possible inside an unbroken token).
func (s *Segmenter) cutLong(sent string) []string {
	var out []string
	r := []rune(sent)
	for len(r) > s.maxSize {
		cut := s.findCut(r)
		piece := strings.TrimSpace(string(r[:cut]))
		if piece != "" {
			out = append(out, piece)
		}
		r = []rune(strings.TrimLeft(string(r[cut:]), " \t\n"))
	}
	if rest := strings.TrimSpace(string(r)); rest != "" {
		out = append(out, rest)
	}
	return out
}

func (s *Segmenter) findCut(r []rune) int {
	end := len(r)
	if end > s.maxSize+lookAhead {
		end = s.maxSize + lookAhead
	}
	for i := end - 1; i > 0; i-- {
		if isSentenceEnd(r[i]) {
			return i + 1
		}
	}
	for i := s.maxSize - 1; i > 0; i-- {
		if r[i] == ' ' || r[i] == '\n' || r[i] == '\t' {
			return i
		}
	}
	return s.maxSize
}

// mergeShort absorbs chunks shorter than minLen into a neighbor:
// into the previous chunk when one exists, else forward into the next.
func (s *Segmenter) mergeShort(chunks []string) []string {
	if s.minLen <= 0 || len(chunks) <= 1 {
		return chunks
	}
	var out []string
	for _, c := range chunks {
		if utf8.RuneCountInString(c) < s.minLen && len(out) > 0 {
			out[len(out)-1] = out[len(out)-1] + "\n\n" + c
			continue
		}
		out = append(out, c)
	}
	if len(out) > 1 && utf8.RuneCountInString(out[0]) < s.minLen {
		out[1] = out[0] + "\n\n" + out[1]
		out = out[1:]
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n+`)

func splitParagraphs(text string) []string {
	parts := blankLineRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(p string) []string {
	locs := sentenceRe.FindAllStringIndex(p, -1)
	if len(locs) == 0 {
		return []string{p}
	}
	var out []string
	end := 0
	for _, loc := range locs {
		if sent := strings.TrimSpace(p[loc[0]:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		end = loc[1]
	}
	if tail := strings.TrimSpace(p[end:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
