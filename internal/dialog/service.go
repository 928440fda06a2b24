// Package dialog implements the policy gate in front of generation:
// per question it either asks for the user's knowledge-base version,
// falls back to diagnostic questions, or assembles context and answers.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kbchat/internal/assembler"
	"kbchat/internal/domain"
	"kbchat/internal/rutext"
)

// Config holds the gate and generation knobs.
type Config struct {
	TopK               int
	MinScore           float64
	MinConfidence      float64
	MaxQuestions       int
	MaxHistoryMessages int
	GenerateTimeout    time.Duration
	MaxAnswerTokens    int
}

// Service runs one question through version check, retrieval, gating,
// assembly, generation and persistence, strictly in that order.
type Service struct {
	ranker    domain.Ranker
	assembler *assembler.Assembler
	generator domain.Generator
	users     domain.UserStore
	convs     domain.ConversationStore
	script    rutext.Script
	versions  []string
	cfg       Config
	log       *zap.Logger
}

func New(
	ranker domain.Ranker,
	asm *assembler.Assembler,
	gen domain.Generator,
	users domain.UserStore,
	convs domain.ConversationStore,
	versions []string,
	cfg Config,
	log *zap.Logger,
) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.30
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 2
	}
	if cfg.MaxHistoryMessages <= 0 {
		cfg.MaxHistoryMessages = 10
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	if cfg.MaxAnswerTokens <= 0 {
		cfg.MaxAnswerTokens = 512
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		ranker:    ranker,
		assembler: asm,
		generator: gen,
		users:     users,
		convs:     convs,
		script:    rutext.Cyrillic{},
		versions:  versions,
		cfg:       cfg,
		log:       log,
	}
}

// Reply handles one user question and returns a terminal outcome.
// Retrieval failures degrade to an empty result; only persistence and
// non-timeout generation faults surface as errors.
func (s *Service) Reply(ctx context.Context, userID, chatID, question string) (domain.DialogOutcome, error) {
	version, err := s.users.UserVersion(ctx, userID)
	if err != nil {
		return domain.DialogOutcome{}, fmt.Errorf("load user version: %w", err)
	}
	if version == "" {
		return domain.DialogOutcome{
			Mode:      domain.ModeNeedVersion,
			Reply:     needVersionReply(s.versions),
			Retrieval: domain.RetrievalInfo{Threshold: s.cfg.MinConfidence},
		}, nil
	}

	candidates, err := s.ranker.Rank(ctx, question, s.cfg.TopK, version, s.cfg.MinScore)
	if err != nil {
		s.log.Warn("retrieval failed, treating as empty", zap.Error(err))
		candidates = nil
	}
	info := domain.RetrievalInfo{
		RetrievedCount: len(candidates),
		Threshold:      s.cfg.MinConfidence,
	}
	if len(candidates) > 0 {
		info.TopScore = candidates[0].Score
	}

	if len(candidates) == 0 || info.TopScore < s.cfg.MinConfidence {
		return domain.DialogOutcome{
			Mode:      domain.ModeDiagnostic,
			Reply:     diagnosticReply(s.cfg.MaxQuestions),
			Version:   version,
			Retrieval: info,
		}, nil
	}
	if s.looksGibberish(question) {
		// A single noisy token can match by accident; do not trust
		// the score in that case.
		return domain.DialogOutcome{
			Mode:      domain.ModeDiagnostic,
			Reply:     diagnosticReply(s.cfg.MaxQuestions),
			Version:   version,
			Retrieval: info,
		}, nil
	}

	convID, err := s.convs.GetOrCreateConversation(ctx, userID, chatID)
	if err != nil {
		return domain.DialogOutcome{}, fmt.Errorf("open conversation: %w", err)
	}
	history, err := s.convs.RecentTurns(ctx, convID, s.cfg.MaxHistoryMessages)
	if err != nil {
		s.log.Warn("history load failed, answering without it", zap.Error(err))
		history = nil
	}

	bundle := s.assembler.Assemble(candidates, question)
	prompt := buildPrompt(question, &bundle, history)

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()
	reply, err := s.generator.Generate(gctx, prompt, s.cfg.MaxAnswerTokens)
	if err != nil {
		if !errors.Is(err, domain.ErrGenerateTimeout) && !errors.Is(err, context.DeadlineExceeded) {
			return domain.DialogOutcome{}, fmt.Errorf("generate: %w", err)
		}
		s.log.Warn("generation timed out", zap.Duration("timeout", s.cfg.GenerateTimeout))
		reply = timeoutReply
	}

	if err := s.convs.AppendTurn(ctx, convID, domain.RoleUser, question); err != nil {
		return domain.DialogOutcome{}, fmt.Errorf("persist user turn: %w", err)
	}
	if err := s.convs.AppendTurn(ctx, convID, domain.RoleAssistant, reply); err != nil {
		return domain.DialogOutcome{}, fmt.Errorf("persist assistant turn: %w", err)
	}

	return domain.DialogOutcome{
		Mode:           domain.ModeAnswer,
		Reply:          reply,
		Citations:      buildCitations(bundle.Candidates),
		Version:        version,
		ConversationID: convID,
		Bundle:         &bundle,
		Retrieval:      info,
	}, nil
}

// looksGibberish flags questions too short to rank reliably: fewer
// than 2 tokens, or fewer than 3 tokens without a single character of
// the support-language script.
func (s *Service) looksGibberish(question string) bool {
	tokens := rutext.Terms(question)
	if len(tokens) < 2 {
		return true
	}
	if len(tokens) < 3 && !rutext.ContainsScript(s.script, question) {
		return true
	}
	return false
}

// buildCitations picks the top three candidates with distinct sources.
func buildCitations(candidates []domain.ScoredCandidate) []domain.Citation {
	seen := make(map[string]struct{}, len(candidates))
	var out []domain.Citation
	for _, c := range candidates {
		src := c.Chunk.DocumentTitle
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, domain.Citation{
			ChunkID: c.Chunk.ID,
			Source:  src,
			Snippet: snippet(c.Chunk.Text, 200),
		})
		if len(out) == 3 {
			break
		}
	}
	return out
}
