package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"agyntsynq/internal/entities"
	"agyntsynq/internal/infrastructure"
	"agyntsynq/internal/interfaces"
	"agyntsynq/internal/metrics"
	"agyntsynq/internal/repository"

	"github.com/rs/zerolog"
)

const (
	MaxMessageLength = 4000
	pollPageSize     = 100
	historyPageSize  = 500
)

var (
	ErrChatbotNotFound = errors.New("chatbot not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidLead     = errors.New("invalid lead")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message too long")
	ErrInvalidCursor   = errors.New("invalid since cursor")
	ErrRateLimited     = errors.New("too many messages, slow down")
	ErrLimitReached    = errors.New("daily message limit reached")
	ErrForbidden       = errors.New("not allowed for this chatbot")
)

// RateLimitError is ErrRateLimited with the wait before the session may
// send again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// SendResult is what the widget adopts after a send.
type SendResult struct {
	SessionID string
	Chatbot   *entities.Chatbot
}

// WidgetService implements the public widget endpoints: config, lead
// capture, send and poll.
type WidgetService struct {
	chatbots  interfaces.ChatbotStore
	sessions  interfaces.SessionStore
	leads     interfaces.LeadStore
	messages  interfaces.MessageStore
	usage     interfaces.UsageTracker
	responder interfaces.Responder
	notifier  Notifier
	guard     *infrastructure.SessionGuard
	limiter   *infrastructure.MessageRateLimiter
	log       zerolog.Logger

	// dispatch runs tenant notifications off the request path
	dispatch func(func())
}

type WidgetDeps struct {
	Chatbots  interfaces.ChatbotStore
	Sessions  interfaces.SessionStore
	Leads     interfaces.LeadStore
	Messages  interfaces.MessageStore
	Usage     interfaces.UsageTracker
	Responder interfaces.Responder
	Notifier  Notifier
	Guard     *infrastructure.SessionGuard
	Limiter   *infrastructure.MessageRateLimiter
}

func NewWidgetService(deps WidgetDeps, log zerolog.Logger) *WidgetService {
	if deps.Guard == nil {
		deps.Guard = infrastructure.NewSessionGuard()
	}
	if deps.Responder == nil {
		deps.Responder = RuleResponder{}
	}
	return &WidgetService{
		chatbots:  deps.Chatbots,
		sessions:  deps.Sessions,
		leads:     deps.Leads,
		messages:  deps.Messages,
		usage:     deps.Usage,
		responder: deps.Responder,
		notifier:  deps.Notifier,
		guard:     deps.Guard,
		limiter:   deps.Limiter,
		log:       log.With().Str("component", "widget_service").Logger(),
		dispatch:  func(f func()) { go f() },
	}
}

// Chatbot returns an active chatbot by id.
func (s *WidgetService) Chatbot(ctx context.Context, chatbotID string) (*entities.Chatbot, error) {
	bot, err := s.chatbots.GetChatbot(ctx, chatbotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChatbotNotFound
		}
		return nil, err
	}
	if !bot.IsActive {
		return nil, ErrChatbotNotFound
	}
	return bot, nil
}

// CaptureLead stores a visitor profile and returns the session it belongs to,
// creating the session when sessionID is empty or unknown.
func (s *WidgetService) CaptureLead(ctx context.Context, chatbotID, sessionID string, profile entities.VisitorProfile) (string, error) {
	profile.Normalize()
	if err := profile.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLead, err)
	}

	bot, err := s.Chatbot(ctx, chatbotID)
	if err != nil {
		return "", err
	}
	session, err := s.resolveSession(ctx, bot, sessionID)
	if err != nil {
		return "", err
	}

	if profile.SubmittedAt.IsZero() {
		profile.SubmittedAt = time.Now().UTC()
	}
	lead := &entities.Lead{ChatbotID: bot.ID, SessionID: session.ID, Profile: profile}
	if err := s.leads.CreateLead(ctx, lead); err != nil {
		return "", err
	}
	metrics.LeadsCaptured.Inc()
	s.log.Info().Str("chatbot_id", bot.ID).Str("session_id", session.ID).Msg("lead captured")

	s.notify(func() error { return s.notifier.NotifyLead(bot, lead) })
	return session.ID, nil
}

// SendMessage stores a visitor message and the automatic reply to it.
func (s *WidgetService) SendMessage(ctx context.Context, chatbotID, sessionID, content string) (*SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	bot, err := s.Chatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}
	session, err := s.resolveSession(ctx, bot, sessionID)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(session.ID) {
		return nil, &RateLimitError{RetryAfter: s.limiter.WaitTime(session.ID)}
	}
	if bot.DailyLimit > 0 {
		received, err := s.usage.TodayReceived(ctx, bot.ID)
		if err != nil {
			return nil, fmt.Errorf("read usage: %w", err)
		}
		if received >= bot.DailyLimit {
			return nil, ErrLimitReached
		}
	}

	unlock := s.guard.Lock(session.ID)
	defer unlock()

	visitorMsg := &entities.Message{
		SessionID:  session.ID,
		ChatbotID:  bot.ID,
		Content:    content,
		SenderType: entities.SenderVisitor,
	}
	if err := s.store(ctx, visitorMsg); err != nil {
		return nil, err
	}
	if err := s.usage.IncrementReceived(ctx, bot.ID); err != nil {
		s.log.Warn().Err(err).Str("chatbot_id", bot.ID).Msg("increment usage")
	}
	s.notify(func() error { return s.notifier.NotifyMessage(bot, visitorMsg) })

	reply, err := s.responder.Reply(ctx, bot, *visitorMsg)
	if err != nil {
		// The visitor message is stored; an agent can still answer.
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("responder failed")
	} else if reply != "" {
		replyMsg := &entities.Message{
			SessionID:  session.ID,
			ChatbotID:  bot.ID,
			Content:    reply,
			SenderType: entities.SenderAI,
		}
		if err := s.store(ctx, replyMsg); err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("store reply")
		} else if err := s.usage.IncrementSent(ctx, bot.ID); err != nil {
			s.log.Warn().Err(err).Str("chatbot_id", bot.ID).Msg("increment usage")
		}
	}

	if err := s.sessions.TouchSession(ctx, session.ID); err != nil {
		s.log.Debug().Err(err).Str("session_id", session.ID).Msg("touch session")
	}
	return &SendResult{SessionID: session.ID, Chatbot: bot}, nil
}

// Poll returns the messages of a session created strictly after since, an
// RFC3339 timestamp; an empty since returns the history from the start.
func (s *WidgetService) Poll(ctx context.Context, sessionID, since string) ([]entities.Message, error) {
	var cursor time.Time
	if since != "" {
		t, err := time.Parse(time.RFC3339Nano, since)
		if err != nil {
			return nil, ErrInvalidCursor
		}
		cursor = t
	}
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessagesSince(ctx, sessionID, cursor, pollPageSize)
	if err != nil {
		return nil, err
	}
	metrics.PollsServed.Inc()
	return msgs, nil
}

// History returns a session transcript for the tenant console.
func (s *WidgetService) History(ctx context.Context, chatbotID, sessionID string) ([]entities.Message, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ChatbotID != chatbotID {
		return nil, ErrSessionNotFound
	}
	return s.messages.ListMessagesSince(ctx, sessionID, time.Time{}, historyPageSize)
}

// PostAgentMessage stores a human agent's answer; visitors receive it by polling.
func (s *WidgetService) PostAgentMessage(ctx context.Context, chatbotID, sessionID, text string) (*entities.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ChatbotID != chatbotID {
		return nil, ErrSessionNotFound
	}

	unlock := s.guard.Lock(session.ID)
	defer unlock()

	msg := &entities.Message{
		SessionID:  session.ID,
		ChatbotID:  chatbotID,
		Content:    text,
		SenderType: entities.SenderAgent,
	}
	if err := s.store(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.usage.IncrementSent(ctx, chatbotID); err != nil {
		s.log.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("increment usage")
	}
	return msg, nil
}

// ReplyFromTelegram accepts an agent reply only from the chat the chatbot
// notifies.
func (s *WidgetService) ReplyFromTelegram(ctx context.Context, chatID int64, sessionID, text string) error {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	bot, err := s.chatbots.GetChatbot(ctx, session.ChatbotID)
	if err != nil {
		return err
	}
	if bot.TelegramChatID == 0 || bot.TelegramChatID != chatID {
		return ErrForbidden
	}
	_, err = s.PostAgentMessage(ctx, bot.ID, sessionID, text)
	return err
}

func (s *WidgetService) session(ctx context.Context, sessionID string) (*entities.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// resolveSession adopts sessionID when it belongs to bot and otherwise
// starts a new session.
func (s *WidgetService) resolveSession(ctx context.Context, bot *entities.Chatbot, sessionID string) (*entities.Session, error) {
	if sessionID != "" {
		session, err := s.session(ctx, sessionID)
		switch {
		case err == nil && session.ChatbotID == bot.ID:
			return session, nil
		case err == nil || errors.Is(err, ErrSessionNotFound):
			s.log.Debug().Str("session_id", sessionID).Str("chatbot_id", bot.ID).Msg("unknown session, starting a new one")
		default:
			return nil, err
		}
	}
	session, err := s.sessions.CreateSession(ctx, bot.ID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *WidgetService) store(ctx context.Context, msg *entities.Message) error {
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesReceived.WithLabelValues(msg.SenderType).Inc()
	return nil
}

func (s *WidgetService) notify(send func() error) {
	if s.notifier == nil {
		return
	}
	s.dispatch(func() {
		if err := send(); err != nil {
			metrics.NotificationFailures.Inc()
			s.log.Warn().Err(err).Msg("tenant notification failed")
		}
	})
}
