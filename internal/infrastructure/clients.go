package infrastructure

import (
	"errors"
	"fmt"
	"strconv"

	"agyntsynq/internal/interfaces"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var ErrTelegramDisabled = errors.New("telegram notifications disabled")

// TelegramClient sends tenant notifications through the server's bot.
type TelegramClient struct {
	Bot *tgbotapi.BotAPI
}

// NewTelegramClient never fails: a missing or invalid token yields a client
// with a nil Bot whose sends return ErrTelegramDisabled.
func NewTelegramClient(token string, log zerolog.Logger) *TelegramClient {
	if token == "" {
		log.Info().Msg("telegram token not set, tenant notifications disabled")
		return &TelegramClient{}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("telegram bot token issue, tenant notifications disabled")
		return &TelegramClient{}
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot connected")
	return &TelegramClient{Bot: bot}
}

var _ interfaces.Messenger = (*TelegramClient)(nil)

// SendMessage sends plain text; `to` is the numeric Telegram chat id.
func (t *TelegramClient) SendMessage(to, content string) error {
	if t.Bot == nil {
		return ErrTelegramDisabled
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}
	_, err = t.Bot.Send(tgbotapi.NewMessage(chatID, content))
	return err
}

// ValidateTelegramToken checks a bot token by calling getMe and returns the bot username.
func ValidateTelegramToken(token string) (string, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return bot.Self.UserName, nil
}
