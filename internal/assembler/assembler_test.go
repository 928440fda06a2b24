package assembler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbchat/internal/domain"
)

func cand(id, docID string, pos int, score float64, text string) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		Chunk: domain.Chunk{ID: id, DocumentID: docID, DocumentTitle: docID, Text: text, Position: pos},
		Score: score,
	}
}

func TestAssembleEmpty(t *testing.T) {
	a := New(0, 0, 0)
	bundle := a.Assemble(nil, "вопрос")
	assert.Empty(t, bundle.Candidates)
	assert.Zero(t, bundle.TotalChars)
}

func TestAssembleDedupKeepsBestScore(t *testing.T) {
	a := New(0, 0, 0)
	bundle := a.Assemble([]domain.ScoredCandidate{
		cand("c1", "d1", 0, 0.4, "текст фрагмента."),
		cand("c1", "d1", 0, 0.8, "текст фрагмента."),
	}, "вопрос")
	require.Len(t, bundle.Candidates, 1)
	assert.InDelta(t, 0.8, bundle.Candidates[0].Score, 1e-9)
}

func TestAssembleMergesAdjacentChunks(t *testing.T) {
	// Positions 3 and 4 of the same document become one candidate
	// carrying the run's best score, counted once against the cap.
	a := New(2, 0, 0)
	bundle := a.Assemble([]domain.ScoredCandidate{
		cand("c3", "d1", 3, 0.9, "Первый кусок инструкции."),
		cand("c7", "d2", 7, 0.7, "Фрагмент другого документа."),
		cand("c4", "d1", 4, 0.5, "Второй кусок инструкции."),
	}, "вопрос")
	require.Len(t, bundle.Candidates, 2)

	merged := bundle.Candidates[0]
	assert.Equal(t, "c3", merged.Chunk.ID)
	assert.InDelta(t, 0.9, merged.Score, 1e-9)
	assert.Contains(t, merged.Chunk.Text, "Первый кусок инструкции.")
	assert.Contains(t, merged.Chunk.Text, "Второй кусок инструкции.")
	assert.Equal(t, "c7", bundle.Candidates[1].Chunk.ID)
}

func TestAssembleChunkCap(t *testing.T) {
	a := New(2, 0, 0)
	bundle := a.Assemble([]domain.ScoredCandidate{
		cand("c1", "d1", 0, 0.9, "Первый ответ."),
		cand("c2", "d2", 0, 0.8, "Второй ответ."),
		cand("c3", "d3", 0, 0.7, "Третий ответ."),
	}, "вопрос")
	require.Len(t, bundle.Candidates, 2)
	assert.Equal(t, "c1", bundle.Candidates[0].Chunk.ID)
	assert.Equal(t, "c2", bundle.Candidates[1].Chunk.ID)
}

func TestAssembleCharBudgetStopsAtFirstViolator(t *testing.T) {
	a := New(4, 50, 0)
	long := strings.Repeat("слово ", 5) // 30 runes
	bundle := a.Assemble([]domain.ScoredCandidate{
		cand("c1", "d1", 0, 0.9, long),
		cand("c2", "d2", 0, 0.8, long),
		cand("c3", "d3", 0, 0.7, "да"),
	}, "вопрос")
	require.Len(t, bundle.Candidates, 1)
	assert.Equal(t, "c1", bundle.Candidates[0].Chunk.ID)
}

func TestAssembleNarrowsToMatchingSection(t *testing.T) {
	text := "## Чёрный экран после входа\n\n" +
		"Проверьте кабель монитора и переустановите драйвер видеокарты.\n\n" +
		"## Диагностика проблем с подключением\n\n" +
		"Проверьте сетевые настройки и доступность сервера."
	a := New(0, 0, 0)
	bundle := a.Assemble([]domain.ScoredCandidate{
		cand("c1", "d1", 0, 0.9, text),
	}, "Черный экран")
	require.Len(t, bundle.Candidates, 1)

	got := bundle.Candidates[0].Chunk.Text
	assert.Contains(t, got, "кабель монитора")
	assert.NotContains(t, got, "сетевые настройки")
}

func TestAssembleKeepsTextWithoutHeadings(t *testing.T) {
	text := "Обычный текст без заголовков о настройке экрана."
	a := New(0, 0, 0)
	bundle := a.Assemble([]domain.ScoredCandidate{
		cand("c1", "d1", 0, 0.9, text),
	}, "Черный экран")
	require.Len(t, bundle.Candidates, 1)
	assert.Equal(t, text, bundle.Candidates[0].Chunk.Text)
}

func TestNormalizeCollapsesBlankRuns(t *testing.T) {
	assert.Equal(t, "альфа\n\nбета", Normalize("альфа\n\n\n\n\nбета"))
}

func TestNormalizeDropsDuplicateLines(t *testing.T) {
	assert.Equal(t, "строка\nдругая", Normalize("строка\nстрока\nдругая"))
}

func TestNormalizeJoinsWrappedWord(t *testing.T) {
	got := Normalize("Это длинное предло\nжение переносится.")
	assert.Equal(t, "Это длинное предложение переносится.", got)
}

func TestNormalizeJoinsWrappedClause(t *testing.T) {
	got := Normalize("Значение равно пяти,\nа не шести.")
	assert.Equal(t, "Значение равно пяти, а не шести.", got)
}

func TestNormalizeRespectsTerminalPunctuation(t *testing.T) {
	got := Normalize("Выполните шаги:\n1. откройте настройки")
	assert.Equal(t, "Выполните шаги:\n1. откройте настройки", got)
}

func TestSafeTrimCutsAtSentenceEnd(t *testing.T) {
	text := strings.Repeat("Это предложение заканчивается точкой. ", 10)
	got := SafeTrim(text, 100)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 100)
	assert.True(t, strings.HasSuffix(got, "."))
}

func TestSafeTrimFallsBackToSpace(t *testing.T) {
	text := strings.Repeat("слово ", 20)
	got := SafeTrim(text, 50)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.True(t, strings.HasSuffix(got, "слово"))
}

func TestSafeTrimUnbreakableText(t *testing.T) {
	text := strings.Repeat("ж", 300)
	got := SafeTrim(text, 100)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
}

func TestSafeTrimShortTextUntouched(t *testing.T) {
	assert.Equal(t, "короткий текст", SafeTrim("короткий текст", 100))
}
