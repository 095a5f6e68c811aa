package repository

import (
	"context"
	"errors"

	"agyntsynq/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

// IncrementReceived counts one visitor message for today.
func (r *UsageRepository) IncrementReceived(ctx context.Context, chatbotID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_usage (chatbot_id, date, messages_sent, messages_received)
		VALUES ($1, CURRENT_DATE, 0, 1)
		ON CONFLICT (chatbot_id, date)
		DO UPDATE SET messages_received = message_usage.messages_received + 1
	`, chatbotID)
	return err
}

// IncrementSent counts one responder or agent message for today.
func (r *UsageRepository) IncrementSent(ctx context.Context, chatbotID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_usage (chatbot_id, date, messages_sent, messages_received)
		VALUES ($1, CURRENT_DATE, 1, 0)
		ON CONFLICT (chatbot_id, date)
		DO UPDATE SET messages_sent = message_usage.messages_sent + 1
	`, chatbotID)
	return err
}

// TodayReceived returns today's visitor message count.
func (r *UsageRepository) TodayReceived(ctx context.Context, chatbotID string) (int, error) {
	var received int
	err := r.db.QueryRow(ctx,
		"SELECT messages_received FROM message_usage WHERE chatbot_id = $1 AND date = CURRENT_DATE",
		chatbotID).Scan(&received)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil // No record means 0 usage
	}
	return received, err
}

// GetUsageHistory returns the last N days of usage, oldest first. Days
// without traffic have no row.
func (r *UsageRepository) GetUsageHistory(ctx context.Context, chatbotID string, days int) ([]entities.DailyUsage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, messages_sent, messages_received
		FROM message_usage
		WHERE chatbot_id = $1 AND date >= CURRENT_DATE - $2::int
		ORDER BY date ASC
	`, chatbotID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := []entities.DailyUsage{}
	for rows.Next() {
		var u entities.DailyUsage
		if err := rows.Scan(&u.Date, &u.MessagesSent, &u.MessagesReceived); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
