// Package store persists the knowledge base (documents, chunks with
// embeddings) and the conversation state (users, conversations,
// messages) in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kbchat/internal/domain"
)

// ErrIndexMissing aliases the domain sentinel: the chunk tables do not
// exist yet, which callers treat as an empty knowledge base.
var ErrIndexMissing = domain.ErrIndexMissing

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	version    TEXT NOT NULL,
	meta       TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (title, version)
);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	text          TEXT NOT NULL,
	position      INTEGER NOT NULL,
	section_title TEXT,
	token_count   INTEGER NOT NULL DEFAULT 0,
	embedding     TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	kb_version TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a SQLite-backed knowledge base and conversation store.
// Retrieval reads acquire connections per call from the pool; no
// cross-request locking is needed.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertDocument stores a document and its chunks. (title, version) is
// unique: an existing document is updated and its chunks replaced.
func (s *Store) UpsertDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	var docID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE title = ? AND version = ?`,
		doc.Title, doc.Version,
	).Scan(&docID)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET meta = ? WHERE id = ?`, string(meta), docID); err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
			return "", err
		}
	case errors.Is(err, sql.ErrNoRows):
		docID = doc.ID
		if docID == "" {
			docID = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, title, version, meta) VALUES (?, ?, ?, ?)`,
			docID, doc.Title, doc.Version, string(meta)); err != nil {
			return "", err
		}
	default:
		return "", err
	}

	for _, ch := range chunks {
		id := ch.ID
		if id == "" {
			id = uuid.New().String()
		}
		var emb any
		if len(ch.Embedding) > 0 {
			data, err := json.Marshal(ch.Embedding)
			if err != nil {
				return "", fmt.Errorf("encode embedding: %w", err)
			}
			emb = string(data)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, text, position, section_title, token_count, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, docID, ch.Text, ch.Position, ch.SectionTitle, ch.TokenCount, emb); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return docID, nil
}

// Candidates loads all chunks eligible for ranking, filtered by
// knowledge-base version when version is non-empty. A missing chunk
// table is reported as ErrIndexMissing.
func (s *Store) Candidates(ctx context.Context, version string) ([]domain.Chunk, error) {
	q := `SELECT c.id, c.document_id, d.title, c.text, c.position,
	             COALESCE(c.section_title, ''), c.token_count, COALESCE(c.embedding, '')
	      FROM chunks c
	      JOIN documents d ON d.id = c.document_id`
	args := []any{}
	if version != "" {
		q += ` WHERE d.version = ?`
		args = append(args, version)
	}
	q += ` ORDER BY d.title, c.position`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if isMissingTable(err) {
			return nil, fmt.Errorf("%w: %v", ErrIndexMissing, err)
		}
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var ch domain.Chunk
		var emb string
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.DocumentTitle, &ch.Text,
			&ch.Position, &ch.SectionTitle, &ch.TokenCount, &emb); err != nil {
			return nil, err
		}
		if emb != "" {
			if err := json.Unmarshal([]byte(emb), &ch.Embedding); err != nil {
				s.log.Warn("chunk has malformed embedding, treating as unembedded",
					zap.String("chunk_id", ch.ID), zap.Error(err))
				ch.Embedding = nil
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UserVersion returns the user's knowledge-base version tag, or ""
// when none is on record.
func (s *Store) UserVersion(ctx context.Context, userID string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT kb_version FROM users WHERE id = ?`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		if isMissingTable(err) {
			return "", nil
		}
		return "", err
	}
	return v.String, nil
}

// SetUserVersion records the user's knowledge-base version tag.
func (s *Store) SetUserVersion(ctx context.Context, userID, version string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, kb_version) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET kb_version = excluded.kb_version,
		                                updated_at = CURRENT_TIMESTAMP`,
		userID, version)
	return err
}

// GetOrCreateConversation returns the latest conversation for a chat,
// creating one if none exists.
func (s *Store) GetOrCreateConversation(ctx context.Context, userID, chatID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE chat_id = ? ORDER BY created_at DESC LIMIT 1`,
		chatID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, chat_id) VALUES (?, ?, ?)`,
		id, userID, chatID)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AppendTurn stores one conversation message.
func (s *Store) AppendTurn(ctx context.Context, conversationID, role, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), conversationID, role, text)
	return err
}

// RecentTurns returns the last limit turns in chronological order.
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages
		 WHERE conversation_id = ? ORDER BY rowid DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Role, &t.Text); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
