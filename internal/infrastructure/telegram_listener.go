package infrastructure

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// sessionTag matches the line every notification carries.
var sessionTag = regexp.MustCompile(`Session: ([0-9A-HJKMNP-TV-Z]{26})`)

// SessionTagLine renders the line TelegramListener uses to route replies.
func SessionTagLine(sessionID string) string {
	return "Session: " + sessionID
}

// AgentReplyFunc stores an agent's Telegram reply into a widget session.
type AgentReplyFunc func(ctx context.Context, chatID int64, sessionID, text string) error

// TelegramListener polls the notification bot for replies to notifications.
type TelegramListener struct {
	bot      *tgbotapi.BotAPI
	onReply  AgentReplyFunc
	log      zerolog.Logger
	stopChan chan struct{}
	once     sync.Once
}

func NewTelegramListener(client *TelegramClient, onReply AgentReplyFunc, log zerolog.Logger) *TelegramListener {
	return &TelegramListener{
		bot:      client.Bot,
		onReply:  onReply,
		log:      log.With().Str("component", "telegram_listener").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called. It returns immediately when
// the bot is disabled.
func (l *TelegramListener) Run(ctx context.Context) {
	if l.bot == nil {
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := l.bot.GetUpdatesChan(u)
	defer l.bot.StopReceivingUpdates()

	l.log.Info().Str("bot", l.bot.Self.UserName).Msg("started polling")
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			l.log.Info().Msg("stopped polling")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			l.handle(ctx, update)
		}
	}
}

func (l *TelegramListener) Stop() {
	l.once.Do(func() { close(l.stopChan) })
}

func (l *TelegramListener) handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() && msg.Command() == "start" {
		text := fmt.Sprintf("Connected. Set this chat id on your chatbot to receive leads: %d", chatID)
		if _, err := l.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			l.log.Warn().Err(err).Msg("send start reply")
		}
		return
	}

	sessionID := ReplySessionID(msg)
	if sessionID == "" || msg.Text == "" {
		return
	}
	if from := msg.ReplyToMessage.From; from != nil && from.ID != l.bot.Self.ID {
		return
	}
	if err := l.onReply(ctx, chatID, sessionID, msg.Text); err != nil {
		l.log.Warn().Err(err).Str("session_id", sessionID).Msg("agent reply rejected")
		return
	}
	l.log.Debug().Str("session_id", sessionID).Msg("agent reply stored")
}

// ReplySessionID returns the session id of the notification msg replies to,
// or "" when msg is not such a reply.
func ReplySessionID(msg *tgbotapi.Message) string {
	parent := msg.ReplyToMessage
	if parent == nil {
		return ""
	}
	m := sessionTag.FindStringSubmatch(parent.Text)
	if m == nil {
		return ""
	}
	return m[1]
}
