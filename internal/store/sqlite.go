package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parleychat/parley/internal/core"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	seq             INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, seq);
`

// SQLiteStore implements Store on modernc.org/sqlite, a pure-Go driver.
// WAL mode keeps reads concurrent with the writes a streaming chat
// produces; foreign keys are enforced so message rows cannot outlive
// their conversation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the
// schema. Use ":memory:" for tests.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
	}

	// Writers are serialized by SQLite itself; one connection avoids
	// in-memory databases vanishing between pool connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreateConversation persists conv, assigning an ID and timestamps.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *core.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, provider, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, string(conv.Provider), conv.Model, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	var conv core.Conversation
	var provider string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, provider, model, created_at, updated_at
		 FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &provider, &conv.Model, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.Errorf(core.ErrNotFound, "conversation %s", id)
	}
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	conv.Provider = core.Provider(provider)
	return &conv, nil
}

// ListConversations returns conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit, offset int) ([]core.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, provider, model, created_at, updated_at
		 FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	defer rows.Close()

	convs := []core.Conversation{}
	for rows.Next() {
		var conv core.Conversation
		var provider string
		if err := rows.Scan(&conv.ID, &conv.Title, &provider, &conv.Model, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		conv.Provider = core.Provider(provider)
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation; message rows cascade.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Errorf(core.ErrNotFound, "conversation %s", id)
	}
	return nil
}

// AppendMessage adds a message and bumps the conversation timestamp.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg core.Message) (*core.StoredMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if exists == 0 {
		return nil, core.Errorf(core.ErrNotFound, "conversation %s", conversationID)
	}

	stored := &core.StoredMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at, seq)
		 VALUES (?, ?, ?, ?, ?,
			 (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?))`,
		stored.ID, conversationID, string(stored.Role), stored.Content, stored.CreatedAt, conversationID)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		stored.CreatedAt, conversationID)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return stored, nil
}

// Messages returns a conversation's messages in insertion order.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]core.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	defer rows.Close()

	msgs := []core.StoredMessage{}
	for rows.Next() {
		var m core.StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		m.Role = core.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return msgs, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
