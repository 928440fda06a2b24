package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "черный экран после входа")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "черный экран после входа")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	vec, err := e.Embed(context.Background(), "проверка нормализации вектора")
	require.NoError(t, err)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestHashEmbedderOverlapIsCloser(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "черный экран")
	near, _ := e.Embed(ctx, "черный экран после входа")
	far, _ := e.Embed(ctx, "настройка принтера по сети")

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder(32)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
