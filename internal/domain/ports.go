package domain

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator produces text for a prompt. Implementations fail with
// ErrGenerateTimeout when the backend does not answer in time.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Ranker scores stored chunks against a query and returns them ordered
// by descending relevance. A missing index yields an empty result, not
// an error.
type Ranker interface {
	Rank(ctx context.Context, query string, topK int, version string, minScore float64) ([]ScoredCandidate, error)
}

// CandidateSource loads the chunks eligible for ranking, optionally
// filtered by knowledge-base version.
type CandidateSource interface {
	Candidates(ctx context.Context, version string) ([]Chunk, error)
}

// UserStore keeps the per-user knowledge-base version tag.
// UserVersion returns "" when the user has no version on record.
type UserStore interface {
	UserVersion(ctx context.Context, userID string) (string, error)
	SetUserVersion(ctx context.Context, userID, version string) error
}

// ConversationStore persists conversation turns.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, userID, chatID string) (string, error)
	AppendTurn(ctx context.Context, conversationID, role, text string) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
}

// DocumentStore ingests documents with their chunks.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc Document, chunks []Chunk) (string, error)
}
