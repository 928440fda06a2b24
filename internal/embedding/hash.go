// Package embedding provides the embedding backends: a deterministic
// hash-based fallback that needs no model, and an OpenAI-compatible
// client.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"regexp"
	"strings"
)

var hashWordRe = regexp.MustCompile(`\p{L}+|\d+`)

// HashEmbedder maps text to a bag-of-hashed-words vector. Overlapping
// words produce closer vectors, so relevant chunks still score higher
// when no real embedding model is available. Stateless and safe for
// concurrent use.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder of the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Name() string { return "hash" }

func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed returns an L2-normalized vector. A text with no usable words
// yields the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dim)
	for _, w := range hashWordRe.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(w)) < 2 {
			continue
		}
		vec[e.bucket(w)]++
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (e *HashEmbedder) bucket(word string) int {
	sum := sha256.Sum256([]byte(word))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(e.dim))
}
