package usecases

import (
	"fmt"
	"strconv"
	"strings"

	"agyntsynq/internal/entities"
	"agyntsynq/internal/infrastructure"
	"agyntsynq/internal/interfaces"
)

// Notifier tells a tenant about widget activity.
type Notifier interface {
	NotifyLead(bot *entities.Chatbot, lead *entities.Lead) error
	NotifyMessage(bot *entities.Chatbot, msg *entities.Message) error
}

// TenantNotifier posts notifications to the chatbot's Telegram chat. Each
// notification carries the session tag so agents can answer by replying.
type TenantNotifier struct {
	messenger interfaces.Messenger
}

func NewTenantNotifier(messenger interfaces.Messenger) *TenantNotifier {
	return &TenantNotifier{messenger: messenger}
}

func (n *TenantNotifier) NotifyLead(bot *entities.Chatbot, lead *entities.Lead) error {
	if bot.TelegramChatID == 0 {
		return nil
	}
	p := lead.Profile
	var consent []string
	if p.OptInEmail {
		consent = append(consent, "email")
	}
	if p.OptInSMS {
		consent = append(consent, "sms")
	}
	if p.OptInPhone {
		consent = append(consent, "phone")
	}

	text := fmt.Sprintf("New lead on %s\n%s\n\n%s\n%s\n%s\nConsent: %s",
		bot.Name, infrastructure.SessionTagLine(lead.SessionID),
		p.Name, p.Email, p.Phone, strings.Join(consent, ", "))
	return n.messenger.SendMessage(strconv.FormatInt(bot.TelegramChatID, 10), text)
}

func (n *TenantNotifier) NotifyMessage(bot *entities.Chatbot, msg *entities.Message) error {
	if bot.TelegramChatID == 0 || !msg.FromVisitor() {
		return nil
	}
	text := fmt.Sprintf("New message on %s\n%s\n\n%s\n\nReply to this message to answer.",
		bot.Name, infrastructure.SessionTagLine(msg.SessionID), msg.Content)
	return n.messenger.SendMessage(strconv.FormatInt(bot.TelegramChatID, 10), text)
}
