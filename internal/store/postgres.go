package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/lushlocks/chat-service/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateConversation creates a new active conversation.
func (s *PostgresStore) CreateConversation(ctx context.Context, sessionID, visitorName string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, session_id, visitor_name, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id, session_id, visitor_name, status, message_count, created_at, last_message_at
	`, uuid.New(), sessionID, visitorName).Scan(
		&conv.ID,
		&conv.SessionID,
		&conv.VisitorName,
		&conv.Status,
		&conv.MessageCount,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID without its message log.
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, visitor_name, status, message_count, created_at, last_message_at
		FROM conversations WHERE id = $1
	`, id).Scan(
		&conv.ID,
		&conv.SessionID,
		&conv.VisitorName,
		&conv.Status,
		&conv.MessageCount,
		&conv.CreatedAt,
		&conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// UpdateConversationStatus changes the lifecycle status of a conversation.
func (s *PostgresStore) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET status = $2 WHERE id = $1
	`, id, status)
	return err
}

// ListConversations retrieves conversation summaries ordered by most recent
// activity.
func (s *PostgresStore) ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, visitor_name, status, message_count, created_at, last_message_at
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var cs models.ConversationSummary
		err := rows.Scan(
			&cs.ID,
			&cs.VisitorName,
			&cs.Status,
			&cs.MessageCount,
			&cs.CreatedAt,
			&cs.LastMessageAt,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, cs)
	}

	return summaries, rows.Err()
}

// AppendMessage inserts a message and bumps the owning conversation's
// message_count and last_message_at in one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, sent_at, tokens_used)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.Sender, msg.Content, msg.SentAt, msg.TokensUsed)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = $2
		WHERE id = $1
	`, msg.ConversationID, msg.SentAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetMessages retrieves the most recent limit messages of a conversation,
// ordered oldest first.
func (s *PostgresStore) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender, content, sent_at, tokens_used
		FROM (
			SELECT id, conversation_id, sender, content, sent_at, tokens_used
			FROM messages
			WHERE conversation_id = $1
			ORDER BY sent_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY sent_at ASC, id ASC
	`
	args := []any{conversationID, limit}
	if limit <= 0 {
		query = `
			SELECT id, conversation_id, sender, content, sent_at, tokens_used
			FROM messages
			WHERE conversation_id = $1
			ORDER BY sent_at ASC, id ASC
		`
		args = args[:1]
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Sender,
			&msg.Content,
			&msg.SentAt,
			&msg.TokensUsed,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountConversations returns the total number of conversations.
func (s *PostgresStore) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

// CountConversationsByStatus counts conversations in the given status.
func (s *PostgresStore) CountConversationsByStatus(ctx context.Context, status models.ConversationStatus) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations WHERE status = $1
	`, status).Scan(&count)
	return count, err
}

// SumMessageCounts returns the total number of persisted messages.
func (s *PostgresStore) SumMessageCounts(ctx context.Context) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(message_count), 0) FROM conversations
	`).Scan(&sum)
	return sum, err
}

// CountStartedSince counts conversations created at or after since.
func (s *PostgresStore) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversations WHERE created_at >= $1
	`, since).Scan(&count)
	return count, err
}
