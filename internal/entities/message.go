package entities

import "time"

// Sender classifications stored in sender_type.
const (
	SenderVisitor = "visitor"
	SenderAI      = "ai"
	SenderAgent   = "agent"
	SenderSystem  = "system"
)

type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ChatbotID  string    `json:"chatbot_id"`
	Content    string    `json:"content"`
	SenderType string    `json:"sender_type"` // visitor, ai, agent, system
	CreatedAt  time.Time `json:"created_at"`
}

// FromVisitor reports whether the message was typed by the website visitor.
func (m Message) FromVisitor() bool {
	return m.SenderType == SenderVisitor
}

// DailyUsage is one day of a chatbot's message counters.
type DailyUsage struct {
	Date             time.Time `json:"date"`
	MessagesSent     int       `json:"messages_sent"`
	MessagesReceived int       `json:"messages_received"`
}

type Session struct {
	ID           string    `json:"id"`
	ChatbotID    string    `json:"chatbot_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
