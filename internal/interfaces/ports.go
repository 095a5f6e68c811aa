package interfaces

import (
	"context"
	"time"

	"agyntsynq/internal/entities"
)

// Messenger delivers a plain text message to an address on an outside channel.
type Messenger interface {
	SendMessage(to, content string) error
}

// Responder produces the automatic reply to a visitor message.
type Responder interface {
	Reply(ctx context.Context, bot *entities.Chatbot, msg entities.Message) (string, error)
}

type ChatbotStore interface {
	GetChatbot(ctx context.Context, id string) (*entities.Chatbot, error)
	ListChatbots(ctx context.Context, tenantID int) ([]entities.Chatbot, error)
	CreateChatbot(ctx context.Context, c *entities.Chatbot) error
	UpdateChatbot(ctx context.Context, c *entities.Chatbot) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, chatbotID string) (*entities.Session, error)
	GetSession(ctx context.Context, id string) (*entities.Session, error)
	TouchSession(ctx context.Context, id string) error
}

type LeadStore interface {
	CreateLead(ctx context.Context, lead *entities.Lead) error
	ListLeads(ctx context.Context, chatbotID string) ([]entities.Lead, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *entities.Message) error
	ListMessagesSince(ctx context.Context, sessionID string, since time.Time, limit int) ([]entities.Message, error)
}

type UsageTracker interface {
	IncrementReceived(ctx context.Context, chatbotID string) error
	IncrementSent(ctx context.Context, chatbotID string) error
	TodayReceived(ctx context.Context, chatbotID string) (int, error)
	GetUsageHistory(ctx context.Context, chatbotID string, days int) ([]entities.DailyUsage, error)
}
