package entities

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Presentation used until a chatbot's own config is known.
const (
	DefaultThemeColor = "#6366f1"
	DefaultWidgetName = "Chat with us"
)

var (
	ErrIncompleteProfile = errors.New("first name, last name, email and phone are required")
	ErrNoConsent         = errors.New("at least one communication preference is required")
)

// Chatbot is one configured widget owned by a tenant user.
type Chatbot struct {
	ID             string    `json:"id"`
	TenantID       int       `json:"tenant_id"`
	Name           string    `json:"name"`
	WelcomeMessage string    `json:"welcome_message"`
	ThemeColor     string    `json:"theme_color"`
	DailyLimit     int       `json:"daily_limit"`      // 0 = unlimited
	TelegramChatID int64     `json:"telegram_chat_id"` // 0 = notifications off
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WidgetConfig returns the public presentation settings of the chatbot.
func (c *Chatbot) WidgetConfig() WidgetConfig {
	return WidgetConfig{
		Name:           c.Name,
		WelcomeMessage: c.WelcomeMessage,
		ThemeColor:     c.ThemeColor,
	}
}

// WidgetConfig is what the embedded runtime needs to present a chatbot.
type WidgetConfig struct {
	Name           string
	WelcomeMessage string
	ThemeColor     string
}

type widgetConfigJSON struct {
	Name              string `json:"name"`
	WelcomeMessage    string `json:"welcomeMessage,omitempty"`
	WelcomeMessageAlt string `json:"welcome_message,omitempty"`
	ThemeColor        string `json:"themeColor,omitempty"`
	ThemeColorAlt     string `json:"theme_color,omitempty"`
}

// MarshalJSON emits both camelCase and snake_case keys; older runtimes read
// the snake_case ones.
func (c WidgetConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(widgetConfigJSON{
		Name:              c.Name,
		WelcomeMessage:    c.WelcomeMessage,
		WelcomeMessageAlt: c.WelcomeMessage,
		ThemeColor:        c.ThemeColor,
		ThemeColorAlt:     c.ThemeColor,
	})
}

func (c *WidgetConfig) UnmarshalJSON(data []byte) error {
	var raw widgetConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.WelcomeMessage = firstNonEmpty(raw.WelcomeMessage, raw.WelcomeMessageAlt)
	c.ThemeColor = firstNonEmpty(raw.ThemeColor, raw.ThemeColorAlt)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// VisitorProfile is the lead captured by the widget before chat is enabled.
type VisitorProfile struct {
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	OptInEmail  bool      `json:"optInEmail"`
	OptInSMS    bool      `json:"optInSms"`
	OptInPhone  bool      `json:"optInPhone"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Normalize trims identity fields and derives the full name.
func (p *VisitorProfile) Normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Name = strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// HasConsent reports whether at least one consent channel is checked.
func (p VisitorProfile) HasConsent() bool {
	return p.OptInEmail || p.OptInSMS || p.OptInPhone
}

// Validate checks the required identity fields first, then consent.
func (p VisitorProfile) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" ||
		strings.TrimSpace(p.LastName) == "" ||
		strings.TrimSpace(p.Email) == "" ||
		strings.TrimSpace(p.Phone) == "" {
		return ErrIncompleteProfile
	}
	if !p.HasConsent() {
		return ErrNoConsent
	}
	return nil
}

// Lead is a stored VisitorProfile bound to a chatbot and session.
type Lead struct {
	ID        string         `json:"id"`
	ChatbotID string         `json:"chatbot_id"`
	SessionID string         `json:"session_id"`
	Profile   VisitorProfile `json:"visitor"`
	CreatedAt time.Time      `json:"created_at"`
}
