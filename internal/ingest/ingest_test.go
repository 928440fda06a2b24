package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbchat/internal/domain"
	"kbchat/internal/embedding"
	"kbchat/internal/segmenter"
)

type memStore struct {
	docs   []domain.Document
	chunks [][]domain.Chunk
}

func (m *memStore) UpsertDocument(_ context.Context, doc domain.Document, chunks []domain.Chunk) (string, error) {
	m.docs = append(m.docs, doc)
	m.chunks = append(m.chunks, chunks)
	return "doc-" + doc.Title, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestPathsFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "faq.md", "# Вопросы\n\nКак подключиться к рабочему столу?")
	writeFile(t, dir, "notes.txt", "Подключение настраивается в клиенте.")
	writeFile(t, dir, "image.png", "binary")

	store := &memStore{}
	p := New(segmenter.New(500, 0, 0), embedding.NewHashEmbedder(16), store, nil)

	res, err := p.IngestPaths(context.Background(), []string{filepath.Join(dir, "*")}, "6.1 (latest)")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 2, res.Chunks)

	for _, doc := range store.docs {
		assert.Equal(t, "6.1 (latest)", doc.Version)
	}
}

func TestIngestEmbedsAndPositionsChunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.md", "# Установка\n\nУстановите сервер Termidesk по инструкции.")

	store := &memStore{}
	p := New(segmenter.New(500, 0, 0), embedding.NewHashEmbedder(16), store, nil)

	_, err := p.IngestPaths(context.Background(), []string{filepath.Join(dir, "guide.md")}, "6.0")
	require.NoError(t, err)
	require.Len(t, store.chunks, 1)

	for i, ch := range store.chunks[0] {
		assert.Equal(t, i, ch.Position)
		assert.Len(t, ch.Embedding, 16)
		assert.Positive(t, ch.TokenCount)
	}
}

func TestIngestSectionTitleFromHeading(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# Настройка подключения\n\nОткройте клиент и укажите адрес сервера.")

	store := &memStore{}
	p := New(segmenter.New(500, 0, 0), nil, store, nil)

	_, err := p.IngestPaths(context.Background(), []string{filepath.Join(dir, "doc.md")}, "6.0")
	require.NoError(t, err)
	require.Len(t, store.chunks, 1)
	require.NotEmpty(t, store.chunks[0])
	assert.Equal(t, "Настройка подключения", store.chunks[0][0].SectionTitle)
}

func TestIngestNoDocumentsIsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "image.png", "binary")

	p := New(segmenter.New(500, 0, 0), nil, &memStore{}, nil)
	_, err := p.IngestPaths(context.Background(), []string{filepath.Join(dir, "*")}, "6.0")
	assert.Error(t, err)
}
