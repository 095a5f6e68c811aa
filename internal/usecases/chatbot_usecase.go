package usecases

import (
	"context"
	"errors"
	"strings"

	"agyntsynq/internal/entities"
	"agyntsynq/internal/interfaces"
	"agyntsynq/internal/repository"
)

const (
	DefaultUsageDays = 30
	MaxUsageDays     = 365
)

// ChatbotInput carries the tenant-editable settings of a chatbot.
type ChatbotInput struct {
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcome_message"`
	ThemeColor     string `json:"theme_color"`
	DailyLimit     int    `json:"daily_limit"`
	TelegramChatID int64  `json:"telegram_chat_id"`
	IsActive       *bool  `json:"is_active"`
}

// ChatbotUsecase is the tenant console over chatbots, leads and transcripts.
// Every call is scoped to the tenant that owns the chatbot.
type ChatbotUsecase struct {
	chatbots interfaces.ChatbotStore
	leads    interfaces.LeadStore
	usage    interfaces.UsageTracker
	widget   *WidgetService
}

func NewChatbotUsecase(chatbots interfaces.ChatbotStore, leads interfaces.LeadStore, usage interfaces.UsageTracker, widget *WidgetService) *ChatbotUsecase {
	return &ChatbotUsecase{chatbots: chatbots, leads: leads, usage: usage, widget: widget}
}

func (u *ChatbotUsecase) List(ctx context.Context, tenantID int) ([]entities.Chatbot, error) {
	return u.chatbots.ListChatbots(ctx, tenantID)
}

// Get returns the chatbot when tenantID owns it.
func (u *ChatbotUsecase) Get(ctx context.Context, tenantID int, id string) (*entities.Chatbot, error) {
	bot, err := u.chatbots.GetChatbot(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChatbotNotFound
		}
		return nil, err
	}
	if bot.TenantID != tenantID {
		return nil, ErrChatbotNotFound
	}
	return bot, nil
}

func (u *ChatbotUsecase) Create(ctx context.Context, tenantID int, in ChatbotInput) (*entities.Chatbot, error) {
	bot := &entities.Chatbot{TenantID: tenantID, IsActive: true}
	apply(bot, in)
	if err := u.chatbots.CreateChatbot(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

func (u *ChatbotUsecase) Update(ctx context.Context, tenantID int, id string, in ChatbotInput) (*entities.Chatbot, error) {
	bot, err := u.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	apply(bot, in)
	if err := u.chatbots.UpdateChatbot(ctx, bot); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChatbotNotFound
		}
		return nil, err
	}
	return bot, nil
}

func apply(bot *entities.Chatbot, in ChatbotInput) {
	bot.Name = strings.TrimSpace(in.Name)
	bot.WelcomeMessage = strings.TrimSpace(in.WelcomeMessage)
	bot.ThemeColor = strings.ToLower(strings.TrimSpace(in.ThemeColor))
	if bot.ThemeColor == "" {
		bot.ThemeColor = entities.DefaultThemeColor
	}
	bot.DailyLimit = in.DailyLimit
	bot.TelegramChatID = in.TelegramChatID
	if in.IsActive != nil {
		bot.IsActive = *in.IsActive
	}
}

func (u *ChatbotUsecase) Leads(ctx context.Context, tenantID int, id string) ([]entities.Lead, error) {
	if _, err := u.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return u.leads.ListLeads(ctx, id)
}

func (u *ChatbotUsecase) Transcript(ctx context.Context, tenantID int, id, sessionID string) ([]entities.Message, error) {
	if _, err := u.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return u.widget.History(ctx, id, sessionID)
}

func (u *ChatbotUsecase) Reply(ctx context.Context, tenantID int, id, sessionID, text string) (*entities.Message, error) {
	if _, err := u.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return u.widget.PostAgentMessage(ctx, id, sessionID, text)
}

// Usage returns the chatbot's daily message counters for the last days days.
// Out of range values fall back to DefaultUsageDays.
func (u *ChatbotUsecase) Usage(ctx context.Context, tenantID int, id string, days int) ([]entities.DailyUsage, error) {
	if _, err := u.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	if days <= 0 || days > MaxUsageDays {
		days = DefaultUsageDays
	}
	return u.usage.GetUsageHistory(ctx, id, days)
}
