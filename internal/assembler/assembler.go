// Package assembler turns ranked chunks into a bounded, readable
// context block: deduplicates, stitches adjacent chunks back together,
// enforces the size budget and narrows long chunks down to the
// markdown section the query is actually about.
package assembler

import (
	"sort"
	"unicode/utf8"

	"kbchat/internal/domain"
)

type Assembler struct {
	maxChunks  int
	maxChars   int
	sectionMax int
}

// New creates an assembler. Non-positive limits fall back to the
// defaults of 4 chunks, 6000 context chars and 1200 chars per section.
func New(maxChunks, maxChars, sectionMax int) *Assembler {
	if maxChunks <= 0 {
		maxChunks = 4
	}
	if maxChars <= 0 {
		maxChars = 6000
	}
	if sectionMax <= 0 {
		sectionMax = 1200
	}
	return &Assembler{maxChunks: maxChunks, maxChars: maxChars, sectionMax: sectionMax}
}

// Assemble builds the context bundle for a query from ranked
// candidates. The input slice is not modified.
func (a *Assembler) Assemble(candidates []domain.ScoredCandidate, query string) domain.ContextBundle {
	if len(candidates) == 0 {
		return domain.ContextBundle{}
	}

	deduped := dedupe(candidates)
	merged := mergeAdjacent(deduped)

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	// Greedy pick under both budgets; the first candidate that does
	// not fit ends the selection, keeping the order stable.
	var picked []domain.ScoredCandidate
	total := 0
	for _, c := range merged {
		if len(picked) >= a.maxChunks {
			break
		}
		n := utf8.RuneCountInString(c.Chunk.Text)
		if total+n > a.maxChars {
			break
		}
		picked = append(picked, c)
		total += n
	}
	if len(picked) == 0 {
		return domain.ContextBundle{}
	}

	share := a.maxChars / len(picked)
	total = 0
	for i := range picked {
		text := BestSection(picked[i].Chunk.Text, query, a.sectionMax)
		text = Normalize(text)
		text = SafeTrim(text, share)
		picked[i].Chunk.Text = text
		total += utf8.RuneCountInString(text)
	}
	return domain.ContextBundle{Candidates: picked, TotalChars: total}
}

// dedupe keeps one candidate per chunk ID, preferring the highest
// score.
func dedupe(candidates []domain.ScoredCandidate) []domain.ScoredCandidate {
	best := make(map[string]int, len(candidates))
	var out []domain.ScoredCandidate
	for _, c := range candidates {
		if i, ok := best[c.Chunk.ID]; ok {
			if c.Score > out[i].Score {
				out[i] = c
			}
			continue
		}
		best[c.Chunk.ID] = len(out)
		out = append(out, c)
	}
	return out
}

// mergeAdjacent joins runs of strictly consecutive chunks of the same
// document into one candidate so the reader sees contiguous source
// text. The merged candidate carries the best score of its run.
func mergeAdjacent(candidates []domain.ScoredCandidate) []domain.ScoredCandidate {
	if len(candidates) < 2 {
		return candidates
	}
	sorted := append([]domain.ScoredCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Chunk, sorted[j].Chunk
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Position < b.Position
	})

	var out []domain.ScoredCandidate
	cur := sorted[0]
	curEnd := cur.Chunk.Position
	for _, c := range sorted[1:] {
		if c.Chunk.DocumentID == cur.Chunk.DocumentID && c.Chunk.Position == curEnd+1 {
			text := cur.Chunk.Text + "\n\n" + c.Chunk.Text
			startPos := cur.Chunk.Position
			if c.Score > cur.Score {
				cur = c
				cur.Chunk.Position = startPos
			}
			cur.Chunk.Text = text
			curEnd = c.Chunk.Position
			continue
		}
		out = append(out, cur)
		cur = c
		curEnd = c.Chunk.Position
	}
	return append(out, cur)
}
