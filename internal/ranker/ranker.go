// Package ranker scores stored chunks against a query by combining
// vector distance with literal term overlap, degrading to a pure
// lexical path when no embeddings are usable.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"kbchat/internal/domain"
	"kbchat/internal/rutext"
)

// Synthetic score bands for the lexical fallback path. They sit
// strictly below the confidence threshold a vector-derived answer
// needs, signaling lower trust to the dialog gate.
const (
	substringBand = 0.25
	relaxedBand   = 0.15
	bandStep      = 0.01
)

// Ranker is process-wide and immutable after construction; Rank may be
// called concurrently.
type Ranker struct {
	source   domain.CandidateSource
	embedder domain.Embedder
	vectorW  float64
	lexicalW float64
	log      *zap.Logger

	embedWarn sync.Once
}

// New creates a hybrid ranker. Zero weights fall back to the default
// 0.8/0.2 vector/lexical mix.
func New(source domain.CandidateSource, embedder domain.Embedder, vectorWeight, lexicalWeight float64, log *zap.Logger) *Ranker {
	if vectorWeight == 0 && lexicalWeight == 0 {
		vectorWeight, lexicalWeight = 0.8, 0.2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{
		source:   source,
		embedder: embedder,
		vectorW:  vectorWeight,
		lexicalW: lexicalWeight,
		log:      log,
	}
}

// Rank returns up to topK candidates ordered by descending combined
// score. Candidates below minScore are discarded. A missing index
// yields an empty result; other storage faults surface as errors.
func (r *Ranker) Rank(ctx context.Context, query string, topK int, version string, minScore float64) ([]domain.ScoredCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	chunks, err := r.source.Candidates(ctx, version)
	if err != nil {
		if errors.Is(err, domain.ErrIndexMissing) {
			r.log.Warn("search index missing, treating as empty", zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	if r.embedder == nil {
		return r.lexicalFallback(chunks, query, topK), nil
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.embedWarn.Do(func() {
			r.log.Warn("embedding backend unavailable, using lexical search", zap.Error(err))
		})
		return r.lexicalFallback(chunks, query, topK), nil
	}
	if isZero(qvec) {
		return r.lexicalFallback(chunks, query, topK), nil
	}

	terms := rutext.Terms(query)
	var scored []domain.ScoredCandidate
	embedded := false
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			// Malformed candidate, skipped individually.
			continue
		}
		if len(ch.Embedding) != len(qvec) {
			continue
		}
		embedded = true
		dist := l2Distance(qvec, ch.Embedding)
		confidence := 1.0 / (1.0 + dist)
		lexical, overlap := lexicalScore(terms, ch.Text)
		score := r.vectorW*confidence + r.lexicalW*lexical
		if score < minScore {
			continue
		}
		scored = append(scored, domain.ScoredCandidate{
			Chunk:      ch,
			Score:      score,
			Confidence: confidence,
			Lexical:    lexical,
			Overlap:    overlap,
			Distance:   dist,
			FromVector: true,
		})
	}
	if !embedded {
		return r.lexicalFallback(chunks, query, topK), nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].Overlap > scored[j].Overlap
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// lexicalFallback is the degraded path when vectors are unavailable:
// whole-query substring containment first, then a relaxed multi-word
// OR search. Scores are synthetic band values, not confidences.
func (r *Ranker) lexicalFallback(chunks []domain.Chunk, query string, topK int) []domain.ScoredCandidate {
	fq := rutext.Fold(query)
	terms := rutext.Terms(query)

	var out []domain.ScoredCandidate
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		if strings.Contains(rutext.Fold(ch.Text), fq) {
			out = append(out, domain.ScoredCandidate{
				Chunk:   ch,
				Score:   bandScore(substringBand, len(out)),
				Lexical: 1,
				Overlap: len(terms),
			})
			if len(out) == topK {
				return out
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		lexical, overlap := lexicalScore(terms, ch.Text)
		if overlap == 0 {
			continue
		}
		out = append(out, domain.ScoredCandidate{
			Chunk:   ch,
			Lexical: lexical,
			Overlap: overlap,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Overlap > out[j].Overlap })
	if len(out) > topK {
		out = out[:topK]
	}
	for i := range out {
		out[i].Score = bandScore(relaxedBand, i)
	}
	return out
}

// lexicalScore returns the fraction of query terms literally present
// in the candidate text, and the matching term count.
func lexicalScore(terms []string, text string) (float64, int) {
	if len(terms) == 0 {
		return 0, 0
	}
	folded := rutext.Fold(text)
	n := 0
	for _, t := range terms {
		if strings.Contains(folded, t) {
			n++
		}
	}
	return float64(n) / float64(len(terms)), n
}

func bandScore(base float64, rank int) float64 {
	s := base - bandStep*float64(rank)
	if s < bandStep {
		s = bandStep
	}
	return s
}

func l2Distance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
