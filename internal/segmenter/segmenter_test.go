package segmenter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func para(word string, chars int) string {
	var b strings.Builder
	for utf8.RuneCountInString(b.String()) < chars-utf8.RuneCountInString(word) {
		b.WriteString(word)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String()) + "."
}

func TestSegmentEmptyInput(t *testing.T) {
	s := New(500, 0, 0)
	assert.Nil(t, s.Segment(""))
	assert.Nil(t, s.Segment("   \n\n\t  "))
}

func TestSegmentThreeParagraphs(t *testing.T) {
	// Paragraphs of ~300 chars with max_size=500 and no overlap pack
	// into exactly two chunks: {1,2} and {3}.
	p1 := para("один", 300)
	p2 := para("два", 300)
	p3 := para("три", 300)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	s := New(500, 0, 0)
	chunks := s.Segment(text)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "один")
	assert.Contains(t, chunks[0], "два")
	assert.Equal(t, p3, chunks[1])
}

func TestSegmentReconstructsInput(t *testing.T) {
	p1 := para("первый", 300)
	p2 := para("второй", 300)
	p3 := para("третий", 300)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	s := New(500, 0, 0)
	chunks := s.Segment(text)

	assert.Equal(t, text, strings.Join(chunks, "\n\n"))
}

func TestSegmentNeverCutsMidWord(t *testing.T) {
	// One long paragraph of identical words and no punctuation forces
	// whitespace cuts; every chunk must begin and end with a whole word.
	text := strings.TrimSpace(strings.Repeat("подключение ", 200))

	s := New(300, 0, 0)
	chunks := s.Segment(text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		for _, w := range strings.Fields(c) {
			assert.Equal(t, "подключение", w)
		}
	}
}

func TestSegmentSentenceFallback(t *testing.T) {
	// A single oversized paragraph falls back to sentence-level
	// accumulation; cuts land after sentence terminators.
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("Это предложение номер для проверки разбиения длинного абзаца. ")
	}
	text := strings.TrimSpace(b.String())
	require.Greater(t, utf8.RuneCountInString(text), 300)

	s := New(300, 0, 0)
	chunks := s.Segment(text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c, "."), "chunk should end at a sentence boundary: %q", c)
	}
}

func TestSegmentOverlapCarry(t *testing.T) {
	p1 := para("альфа", 120)
	p2 := para("бета", 120)
	p3 := para("гамма", 120)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	s := New(150, 40, 0)
	chunks := s.Segment(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	// The second chunk starts with the carried tail of the first
	// (words of p2), trimmed to a word boundary.
	assert.True(t, strings.HasPrefix(chunks[1], "бета"),
		"expected overlap seed from previous chunk, got %q", chunks[1])
}

func TestSegmentOverlapClamped(t *testing.T) {
	s := New(100, 500, 0)
	assert.Equal(t, 50, s.overlap)
}

func TestSegmentMergesShortChunk(t *testing.T) {
	p1 := para("раз", 250)
	p2 := para("два", 250)
	short := "Коротко."
	text := p1 + "\n\n" + p2 + "\n\n" + short

	s := New(400, 0, 100)
	chunks := s.Segment(text)

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "Коротко.")
}

func TestSegmentShortOnlyChunkKept(t *testing.T) {
	s := New(400, 0, 100)
	chunks := s.Segment("Одинокий короткий абзац.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Одинокий короткий абзац.", chunks[0])
}

func TestSegmentUnbrokenToken(t *testing.T) {
	// A token with no whitespace at all can only be cut at the limit.
	text := strings.Repeat("ж", 1200)

	s := New(500, 0, 0)
	chunks := s.Segment(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[1]))
	assert.Equal(t, 200, utf8.RuneCountInString(chunks[2]))
}
