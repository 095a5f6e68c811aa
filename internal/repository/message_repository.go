package repository

import (
	"context"
	"fmt"
	"time"

	"agyntsynq/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage stores a message. created_at is forced strictly past the
// newest message of the session so the since cursor never skips a row.
func (r *MessageRepository) CreateMessage(ctx context.Context, m *entities.Message) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO widget_messages (id, session_id, chatbot_id, content, sender_type, created_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST($6::timestamptz, COALESCE(
			(SELECT MAX(created_at) + INTERVAL '1 microsecond' FROM widget_messages WHERE session_id = $2),
			$6::timestamptz)))
		RETURNING created_at
	`, m.ID, m.SessionID, m.ChatbotID, m.Content, m.SenderType, m.CreatedAt).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return nil
}

// ListMessagesSince returns up to limit messages created strictly after since,
// oldest first. A zero since returns the session from the beginning.
func (r *MessageRepository) ListMessagesSince(ctx context.Context, sessionID string, since time.Time, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, chatbot_id, content, sender_type, created_at
		FROM widget_messages
		WHERE session_id=$1 AND ($2::timestamptz IS NULL OR created_at > $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, sessionID, nullableTime(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ChatbotID, &m.Content, &m.SenderType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
