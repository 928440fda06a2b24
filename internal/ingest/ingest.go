// Package ingest loads knowledge-base files, segments them into chunks,
// embeds the chunks and stores them under a version tag.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"kbchat/internal/domain"
	"kbchat/internal/segmenter"
)

var headingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

type Pipeline struct {
	segmenter *segmenter.Segmenter
	embedder  domain.Embedder
	store     domain.DocumentStore
	log       *zap.Logger
}

func New(seg *segmenter.Segmenter, embedder domain.Embedder, store domain.DocumentStore, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{segmenter: seg, embedder: embedder, store: store, log: log}
}

// Result summarizes one ingestion run.
type Result struct {
	Documents int
	Chunks    int
}

// IngestPaths ingests every .md and .txt file matched by the given
// paths (globs allowed) under the given knowledge-base version.
// Re-ingesting a file for the same version replaces its chunks.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string, version string) (Result, error) {
	var res Result
	for _, pattern := range paths {
		matches, _ := filepath.Glob(pattern)
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			ext := strings.ToLower(filepath.Ext(m))
			if ext != ".md" && ext != ".txt" {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return res, fmt.Errorf("read %s: %w", m, err)
			}
			n, err := p.ingestDocument(ctx, filepath.Base(m), m, version, string(data))
			if err != nil {
				return res, fmt.Errorf("ingest %s: %w", m, err)
			}
			res.Documents++
			res.Chunks += n
		}
	}
	if res.Documents == 0 {
		return res, fmt.Errorf("no .md or .txt documents found")
	}
	return res, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, title, path, version, content string) (int, error) {
	parts := p.segmenter.Segment(content)
	if len(parts) == 0 {
		p.log.Warn("document is empty, skipping", zap.String("path", path))
		return 0, nil
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	section := ""
	embedFailed := false
	for i, text := range parts {
		ch := domain.Chunk{
			Text:         text,
			Position:     i,
			SectionTitle: section,
			TokenCount:   len(strings.Fields(text)),
		}
		// The next chunk inherits the last heading seen so far.
		if hs := headingRe.FindAllStringSubmatch(text, -1); len(hs) > 0 {
			section = strings.TrimSpace(hs[len(hs)-1][1])
			if ch.SectionTitle == "" {
				ch.SectionTitle = strings.TrimSpace(hs[0][1])
			}
		}
		if p.embedder != nil && !embedFailed {
			vec, err := p.embedder.Embed(ctx, text)
			if err != nil {
				// Store the document anyway; retrieval degrades to
				// lexical search until re-ingested.
				p.log.Warn("embedding failed, storing without vectors",
					zap.String("path", path), zap.Error(err))
				embedFailed = true
			} else {
				ch.Embedding = vec
			}
		}
		chunks = append(chunks, ch)
	}

	doc := domain.Document{
		Title:    title,
		Version:  version,
		Metadata: map[string]string{"path": path},
	}
	docID, err := p.store.UpsertDocument(ctx, doc, chunks)
	if err != nil {
		return 0, err
	}
	p.log.Info("document ingested",
		zap.String("document_id", docID),
		zap.String("title", title),
		zap.String("version", version),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
