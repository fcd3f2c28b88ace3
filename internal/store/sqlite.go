package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/lushlocks/chat-service/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		visitor_name TEXT DEFAULT '',
		status TEXT DEFAULT 'active',
		message_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_message_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		tokens_used INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateConversation creates a new active conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, sessionID, visitorName string) (*models.Conversation, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, session_id, visitor_name, status, message_count, created_at, last_message_at)
		VALUES (?, ?, ?, 'active', 0, ?, ?)
	`, id.String(), sessionID, visitorName, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by ID without its message log.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, visitor_name, status, message_count, created_at, last_message_at
		FROM conversations WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&conv.SessionID,
		&conv.VisitorName,
		&conv.Status,
		&conv.MessageCount,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conv.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// UpdateConversationStatus changes the lifecycle status of a conversation.
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ? WHERE id = ?
	`, status, id.String())
	return err
}

// ListConversations retrieves conversation summaries ordered by most recent
// activity.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, visitor_name, status, message_count, created_at, last_message_at
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var cs models.ConversationSummary
		var idStr string
		err := rows.Scan(
			&idStr,
			&cs.VisitorName,
			&cs.Status,
			&cs.MessageCount,
			&cs.CreatedAt,
			&cs.LastMessageAt,
		)
		if err != nil {
			return nil, err
		}
		if cs.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		summaries = append(summaries, cs)
	}

	return summaries, rows.Err()
}

// AppendMessage inserts a message and bumps the owning conversation's
// message_count and last_message_at in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, sent_at, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID.String(), msg.Sender, msg.Content, msg.SentAt, msg.TokensUsed)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = ?
		WHERE id = ?
	`, msg.SentAt, msg.ConversationID.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetMessages retrieves the most recent limit messages of a conversation,
// ordered oldest first.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender, content, sent_at, tokens_used
		FROM (
			SELECT id, conversation_id, sender, content, sent_at, tokens_used
			FROM messages
			WHERE conversation_id = ?
			ORDER BY sent_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC, id ASC
	`
	args := []any{conversationID.String(), limit}
	if limit <= 0 {
		query = `
			SELECT id, conversation_id, sender, content, sent_at, tokens_used
			FROM messages
			WHERE conversation_id = ?
			ORDER BY sent_at ASC, id ASC
		`
		args = args[:1]
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var convIDStr string
		err := rows.Scan(
			&msg.ID,
			&convIDStr,
			&msg.Sender,
			&msg.Content,
			&msg.SentAt,
			&msg.TokensUsed,
		)
		if err != nil {
			return nil, err
		}
		if msg.ConversationID, err = uuid.Parse(convIDStr); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountConversations returns the total number of conversations.
func (s *SQLiteStore) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

// CountConversationsByStatus counts conversations in the given status.
func (s *SQLiteStore) CountConversationsByStatus(ctx context.Context, status models.ConversationStatus) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversations WHERE status = ?
	`, status).Scan(&count)
	return count, err
}

// SumMessageCounts returns the total number of persisted messages.
func (s *SQLiteStore) SumMessageCounts(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(message_count), 0) FROM conversations
	`).Scan(&sum)
	return sum, err
}

// CountStartedSince counts conversations created at or after since.
func (s *SQLiteStore) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversations WHERE created_at >= ?
	`, since).Scan(&count)
	return count, err
}
