package domain

// Document is a versioned source text unit in the knowledge base.
// (Title, Version) is unique: re-ingesting the same document for the
// same version replaces its chunks instead of duplicating them.
type Document struct {
	ID       string
	Title    string
	Version  string
	Metadata map[string]string
}

// Chunk is a bounded, position-ordered segment of a document used as
// the unit of retrieval. Positions are contiguous per document
// starting at 0.
type Chunk struct {
	ID            string
	DocumentID    string
	DocumentTitle string
	Text          string
	Position      int
	SectionTitle  string
	Embedding     []float64
	TokenCount    int
}

// ScoredCandidate is a chunk with query-scoped relevance scores.
// Score is the combined vector+lexical score in [0,1]. Distance is the
// raw vector distance (valid only when FromVector is true). Produced
// transiently per query, never persisted.
type ScoredCandidate struct {
	Chunk      Chunk
	Score      float64
	Confidence float64
	Lexical    float64
	Overlap    int
	Distance   float64
	FromVector bool
}

// ContextBundle is the final budget-constrained candidate list handed
// to generation, ordered by descending score.
type ContextBundle struct {
	Candidates []ScoredCandidate
	TotalChars int
}

// DialogMode identifies the terminal state of the dialog policy gate.
type DialogMode int

const (
	ModeNeedVersion DialogMode = iota + 1
	ModeDiagnostic
	ModeAnswer
)

func (m DialogMode) String() string {
	switch m {
	case ModeNeedVersion:
		return "need_version"
	case ModeDiagnostic:
		return "diagnostic"
	case ModeAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Citation points at a source fragment used to build an answer.
type Citation struct {
	ChunkID string
	Source  string
	Snippet string
}

// RetrievalInfo is the diagnostic payload recorded by every terminal
// gate state, returned alongside the reply rather than embedded in it.
type RetrievalInfo struct {
	RetrievedCount int
	TopScore       float64
	Threshold      float64
}

// DialogOutcome is constructed fresh per incoming question and carries
// the chosen mode with its per-variant payload.
type DialogOutcome struct {
	Mode           DialogMode
	Reply          string
	Citations      []Citation
	Version        string
	ConversationID string
	Bundle         *ContextBundle
	Retrieval      RetrievalInfo
}

// Turn is one conversation message.
type Turn struct {
	Role string
	Text string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
