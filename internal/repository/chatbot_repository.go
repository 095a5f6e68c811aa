package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agyntsynq/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// NewID returns a lexically sortable identifier for sessions, leads and messages.
func NewID() string {
	return ulid.Make().String()
}

type ChatbotRepository struct {
	db *pgxpool.Pool
}

func NewChatbotRepository(db *pgxpool.Pool) *ChatbotRepository {
	return &ChatbotRepository{db: db}
}

const chatbotColumns = `id, tenant_id, name, welcome_message, theme_color, daily_limit,
	telegram_chat_id, is_active, created_at, updated_at`

func scanChatbot(row pgx.Row) (*entities.Chatbot, error) {
	var c entities.Chatbot
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.WelcomeMessage, &c.ThemeColor, &c.DailyLimit,
		&c.TelegramChatID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetChatbot returns a chatbot by id, active or not.
func (r *ChatbotRepository) GetChatbot(ctx context.Context, id string) (*entities.Chatbot, error) {
	row := r.db.QueryRow(ctx, "SELECT "+chatbotColumns+" FROM chatbots WHERE id=$1", id)
	c, err := scanChatbot(row)
	if err != nil {
		return nil, fmt.Errorf("get chatbot %s: %w", id, err)
	}
	return c, nil
}

// ListChatbots returns every chatbot owned by a tenant.
func (r *ChatbotRepository) ListChatbots(ctx context.Context, tenantID int) ([]entities.Chatbot, error) {
	rows, err := r.db.Query(ctx, "SELECT "+chatbotColumns+" FROM chatbots WHERE tenant_id=$1 ORDER BY created_at", tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bots := []entities.Chatbot{}
	for rows.Next() {
		c, err := scanChatbot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, *c)
	}
	return bots, rows.Err()
}

// CreateChatbot inserts a chatbot, assigning an id when none is set.
func (r *ChatbotRepository) CreateChatbot(ctx context.Context, c *entities.Chatbot) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.Exec(ctx, `
		INSERT INTO chatbots (id, tenant_id, name, welcome_message, theme_color, daily_limit,
			telegram_chat_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.TenantID, c.Name, c.WelcomeMessage, c.ThemeColor, c.DailyLimit,
		c.TelegramChatID, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create chatbot: %w", err)
	}
	return nil
}

// UpdateChatbot overwrites the mutable settings of a tenant's chatbot.
func (r *ChatbotRepository) UpdateChatbot(ctx context.Context, c *entities.Chatbot) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE chatbots SET name=$1, welcome_message=$2, theme_color=$3, daily_limit=$4,
			telegram_chat_id=$5, is_active=$6, updated_at=$7
		WHERE id=$8 AND tenant_id=$9
	`, c.Name, c.WelcomeMessage, c.ThemeColor, c.DailyLimit,
		c.TelegramChatID, c.IsActive, c.UpdatedAt, c.ID, c.TenantID)
	if err != nil {
		return fmt.Errorf("update chatbot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
