package repository

import (
	"context"
	"fmt"
	"time"

	"agyntsynq/internal/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

type LeadRepository struct {
	db *pgxpool.Pool
}

func NewLeadRepository(db *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) CreateLead(ctx context.Context, lead *entities.Lead) error {
	if lead.ID == "" {
		lead.ID = NewID()
	}
	lead.CreatedAt = time.Now().UTC()
	p := lead.Profile
	_, err := r.db.Exec(ctx, `
		INSERT INTO widget_leads (id, chatbot_id, session_id, first_name, last_name, email, phone,
			opt_in_email, opt_in_sms, opt_in_phone, submitted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, lead.ID, lead.ChatbotID, lead.SessionID, p.FirstName, p.LastName, p.Email, p.Phone,
		p.OptInEmail, p.OptInSMS, p.OptInPhone, p.SubmittedAt, lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// ListLeads returns the leads of a chatbot, newest first.
func (r *LeadRepository) ListLeads(ctx context.Context, chatbotID string) ([]entities.Lead, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, chatbot_id, session_id, first_name, last_name, email, phone,
			opt_in_email, opt_in_sms, opt_in_phone, COALESCE(submitted_at, created_at), created_at
		FROM widget_leads WHERE chatbot_id=$1 ORDER BY created_at DESC
	`, chatbotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []entities.Lead{}
	for rows.Next() {
		var l entities.Lead
		p := &l.Profile
		if err := rows.Scan(&l.ID, &l.ChatbotID, &l.SessionID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
			&p.OptInEmail, &p.OptInSMS, &p.OptInPhone, &p.SubmittedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		p.Normalize()
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
