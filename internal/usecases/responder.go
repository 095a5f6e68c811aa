package usecases

import (
	"context"
	"strings"

	"agyntsynq/internal/entities"
	"agyntsynq/internal/interfaces"
)

const (
	defaultWelcome = "Hi there! How can we help you today?"
	helpReply      = "I can answer questions about our products and services, " +
		"take a message for our team, or connect you with an agent. Just type your question."
	fallbackReply = "Thanks for your message! A member of our team will get back to you here shortly."
)

// RuleResponder answers visitor messages with keyword rules.
// Priority: 1. Greeting → 2. Help/menu → 3. Default acknowledgement
type RuleResponder struct{}

var _ interfaces.Responder = RuleResponder{}

func (RuleResponder) Reply(_ context.Context, bot *entities.Chatbot, msg entities.Message) (string, error) {
	content := strings.ToLower(strings.TrimSpace(msg.Content))

	if isGreeting(content) {
		if bot != nil && strings.TrimSpace(bot.WelcomeMessage) != "" {
			return bot.WelcomeMessage, nil
		}
		return defaultWelcome, nil
	}
	if isHelpCommand(content) {
		return helpReply, nil
	}
	return fallbackReply, nil
}

// isGreeting matches whole words only so "this" does not count as "hi".
func isGreeting(content string) bool {
	greetings := map[string]bool{"hello": true, "hi": true, "hey": true, "hiya": true, "howdy": true, "greetings": true}
	words := strings.FieldsFunc(content, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if len(words) == 0 {
		return false
	}
	if greetings[words[0]] {
		return true
	}
	return strings.HasPrefix(content, "good morning") ||
		strings.HasPrefix(content, "good afternoon") ||
		strings.HasPrefix(content, "good evening")
}

func isHelpCommand(content string) bool {
	content = strings.TrimRight(content, "?!. ")
	for _, cmd := range []string{"menu", "help", "options"} {
		if content == cmd || strings.HasPrefix(content, cmd+" ") {
			return true
		}
	}
	return false
}
