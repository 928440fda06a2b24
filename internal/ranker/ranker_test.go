package ranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbchat/internal/domain"
)

type mockSource struct {
	chunks []domain.Chunk
	err    error
}

func (m *mockSource) Candidates(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

type mockEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (m *mockEmbedder) Name() string   { return "mock" }
func (m *mockEmbedder) Dimension() int { return 2 }

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float64{1, 0}, nil
}

func TestRankDistanceToConfidence(t *testing.T) {
	// Distances [0, 1, 4] must map to confidences [1.0, 0.5, 0.2];
	// with min_score=0.3 and no lexical contribution the last
	// candidate is dropped.
	src := &mockSource{chunks: []domain.Chunk{
		{ID: "a", Text: "альфа", Embedding: []float64{1, 0}},
		{ID: "b", Text: "бета", Embedding: []float64{1, 1}},
		{ID: "c", Text: "гамма", Embedding: []float64{5, 0}},
	}}
	r := New(src, &mockEmbedder{}, 1.0, 0, nil)

	got, err := r.Rank(context.Background(), "query", 5, "", 0.3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Chunk.ID)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)
	assert.Equal(t, "b", got[1].Chunk.ID)
	assert.InDelta(t, 0.5, got[1].Confidence, 1e-9)
}

func TestRankTopKCap(t *testing.T) {
	var chunks []domain.Chunk
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		chunks = append(chunks, domain.Chunk{ID: id, Text: "текст " + id, Embedding: []float64{1, 0}})
	}
	r := New(&mockSource{chunks: chunks}, &mockEmbedder{}, 0, 0, nil)

	got, err := r.Rank(context.Background(), "текст", 3, "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRankLexicalMix(t *testing.T) {
	// Equal distances: the candidate containing the query terms wins
	// through the lexical component.
	src := &mockSource{chunks: []domain.Chunk{
		{ID: "plain", Text: "ничего общего", Embedding: []float64{1, 0}},
		{ID: "match", Text: "чёрный экран после входа", Embedding: []float64{1, 0}},
	}}
	r := New(src, &mockEmbedder{}, 0, 0, nil)

	got, err := r.Rank(context.Background(), "черный экран", 5, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "match", got[0].Chunk.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRankSkipsMalformedCandidates(t *testing.T) {
	src := &mockSource{chunks: []domain.Chunk{
		{ID: "empty", Text: "   ", Embedding: []float64{1, 0}},
		{ID: "ok", Text: "нормальный текст", Embedding: []float64{1, 0}},
	}}
	r := New(src, &mockEmbedder{}, 0, 0, nil)

	got, err := r.Rank(context.Background(), "текст", 5, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Chunk.ID)
}

func TestRankMissingIndexIsEmptyResult(t *testing.T) {
	src := &mockSource{err: domain.ErrIndexMissing}
	r := New(src, &mockEmbedder{}, 0, 0, nil)

	got, err := r.Rank(context.Background(), "вопрос", 5, "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRankStorageFaultSurfaces(t *testing.T) {
	src := &mockSource{err: errors.New("disk io failure")}
	r := New(src, &mockEmbedder{}, 0, 0, nil)

	_, err := r.Rank(context.Background(), "вопрос", 5, "", 0)
	assert.Error(t, err)
}

func TestRankEmbedderDownFallsBackToLexical(t *testing.T) {
	src := &mockSource{chunks: []domain.Chunk{
		{ID: "a", Text: "настройка подключения к серверу"},
		{ID: "b", Text: "обновление лицензии"},
	}}
	r := New(src, &mockEmbedder{err: errors.New("backend down")}, 0, 0, nil)

	got, err := r.Rank(context.Background(), "подключения к серверу", 5, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Chunk.ID)
	assert.False(t, got[0].FromVector)
	// Synthetic scores sit below the vector confidence band.
	assert.Less(t, got[0].Score, 0.3)
}

func TestRankLexicalRelaxedOR(t *testing.T) {
	// No chunk contains the whole query as a substring; the relaxed
	// multi-word OR search still finds partial term matches.
	src := &mockSource{chunks: []domain.Chunk{
		{ID: "a", Text: "экран монитора мерцает"},
		{ID: "b", Text: "принтер не печатает"},
	}}
	r := New(src, nil, 0, 0, nil)

	got, err := r.Rank(context.Background(), "черный экран", 5, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Chunk.ID)
	assert.Less(t, got[0].Score, 0.25)
}

func TestRankEmptyQuery(t *testing.T) {
	r := New(&mockSource{}, &mockEmbedder{}, 0, 0, nil)
	got, err := r.Rank(context.Background(), "   ", 5, "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
