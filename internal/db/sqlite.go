package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/parley-chat/parley/internal/models"
)

// ErrNotFound is returned when a conversation does not exist or is not owned
// by the requesting principal. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    session_token TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);`

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps concurrent request handlers from serializing on reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// newSessionToken returns the 16-character client-facing token for a
// conversation, distinct from its primary id.
func newSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (d *Database) CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        title,
		SessionToken: newSessionToken(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := d.db.ExecContext(ctx, `
        INSERT INTO conversations (id, owner_id, title, session_token, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.SessionToken, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return conv, nil
}

func (d *Database) GetConversation(ctx context.Context, ownerID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.QueryRowContext(ctx, `
        SELECT id, owner_id, title, session_token, created_at, updated_at
        FROM conversations
        WHERE id = ? AND owner_id = ?`, id, ownerID).
		Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.SessionToken, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &conv, nil
}

func (d *Database) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, owner_id, title, session_token, created_at, updated_at
        FROM conversations
        WHERE owner_id = ?
        ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.SessionToken, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// UpdateConversationTitle renames an owned conversation and bumps updated_at.
func (d *Database) UpdateConversationTitle(ctx context.Context, ownerID, id, title string) (*models.Conversation, error) {
	res, err := d.db.ExecContext(ctx, `
        UPDATE conversations SET title = ?, updated_at = ?
        WHERE id = ? AND owner_id = ?`, title, time.Now().UTC(), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("updating conversation title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating conversation title: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return d.GetConversation(ctx, ownerID, id)
}

// TouchConversation bumps updated_at so recency ordering tracks the latest
// appended turn. Returns the new timestamp.
func (d *Database) TouchConversation(ctx context.Context, id string) (time.Time, error) {
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("touching conversation: %w", err)
	}
	return now, nil
}

// DeleteConversation removes an owned conversation and all of its messages in
// one transaction, so a concurrent reader never observes a half-deleted thread.
func (d *Database) DeleteConversation(ctx context.Context, ownerID, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}

	return tx.Commit()
}

// SaveMessage persists a message, assigning its id and created_at. Messages are
// immutable once written.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	_, err := d.db.ExecContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, text, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConvID, msg.Role, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetConversationHistory returns every message of a conversation oldest first.
// Equal timestamps fall back to insertion order, which keeps the user half of a
// turn pair ahead of the ai half.
func (d *Database) GetConversationHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, text, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConvID, &msg.Role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
