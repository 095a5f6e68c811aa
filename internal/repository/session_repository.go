package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agyntsynq/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, chatbotID string) (*entities.Session, error) {
	now := time.Now().UTC()
	s := &entities.Session{ID: NewID(), ChatbotID: chatbotID, CreatedAt: now, LastActivity: now}
	_, err := r.db.Exec(ctx,
		"INSERT INTO widget_sessions (id, chatbot_id, created_at, last_activity) VALUES ($1, $2, $3, $4)",
		s.ID, s.ChatbotID, s.CreatedAt, s.LastActivity)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*entities.Session, error) {
	var s entities.Session
	err := r.db.QueryRow(ctx,
		"SELECT id, chatbot_id, created_at, last_activity FROM widget_sessions WHERE id=$1", id).
		Scan(&s.ID, &s.ChatbotID, &s.CreatedAt, &s.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) TouchSession(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, "UPDATE widget_sessions SET last_activity=NOW() WHERE id=$1", id)
	return err
}
