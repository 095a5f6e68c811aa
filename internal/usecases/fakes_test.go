package usecases

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agyntsynq/internal/entities"
	"agyntsynq/internal/repository"

	"github.com/rs/zerolog"
)

// memStore implements every store port in memory.
type memStore struct {
	mu       sync.Mutex
	seq      int
	chatbots map[string]*entities.Chatbot
	sessions map[string]*entities.Session
	leads    []entities.Lead
	messages []entities.Message
	received map[string]int
	sent     map[string]int
	clock    time.Time

	// last days value passed to GetUsageHistory
	historyDays int
}

func newMemStore() *memStore {
	return &memStore{
		chatbots: map[string]*entities.Chatbot{},
		sessions: map[string]*entities.Session{},
		received: map[string]int{},
		sent:     map[string]int{},
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) GetChatbot(_ context.Context, id string) (*entities.Chatbot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.chatbots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *bot
	return &cp, nil
}

func (m *memStore) ListChatbots(_ context.Context, tenantID int) ([]entities.Chatbot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entities.Chatbot{}
	for _, b := range m.chatbots {
		if b.TenantID == tenantID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateChatbot(_ context.Context, c *entities.Chatbot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = m.nextID("bot")
	}
	cp := *c
	m.chatbots[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateChatbot(_ context.Context, c *entities.Chatbot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.chatbots[c.ID]
	if !ok || existing.TenantID != c.TenantID {
		return repository.ErrNotFound
	}
	cp := *c
	m.chatbots[c.ID] = &cp
	return nil
}

func (m *memStore) CreateSession(_ context.Context, chatbotID string) (*entities.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &entities.Session{ID: m.nextID("sess"), ChatbotID: chatbotID, CreatedAt: m.clock, LastActivity: m.clock}
	m.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*entities.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) TouchSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivity = m.clock
	}
	return nil
}

func (m *memStore) CreateLead(_ context.Context, lead *entities.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead.ID = m.nextID("lead")
	lead.CreatedAt = m.clock
	m.leads = append(m.leads, *lead)
	return nil
}

func (m *memStore) ListLeads(_ context.Context, chatbotID string) ([]entities.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entities.Lead{}
	for _, l := range m.leads {
		if l.ChatbotID == chatbotID {
			out = append(out, l)
		}
	}
	return out, nil
}

// CreateMessage mirrors the repository: timestamps strictly increase per session.
func (m *memStore) CreateMessage(_ context.Context, msg *entities.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Millisecond)
	msg.ID = m.nextID("msg")
	msg.CreatedAt = m.clock
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) ListMessagesSince(_ context.Context, sessionID string, since time.Time, limit int) ([]entities.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entities.Message{}
	for _, msg := range m.messages {
		if msg.SessionID == sessionID && msg.CreatedAt.After(since) {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) sessionMessages(sessionID string) []entities.Message {
	msgs, _ := m.ListMessagesSince(context.Background(), sessionID, time.Time{}, 1000)
	return msgs
}

func (m *memStore) IncrementReceived(_ context.Context, chatbotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[chatbotID]++
	return nil
}

func (m *memStore) IncrementSent(_ context.Context, chatbotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[chatbotID]++
	return nil
}

func (m *memStore) TodayReceived(_ context.Context, chatbotID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received[chatbotID], nil
}

func (m *memStore) GetUsageHistory(_ context.Context, chatbotID string, days int) ([]entities.DailyUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyDays = days
	out := []entities.DailyUsage{}
	if m.received[chatbotID] > 0 || m.sent[chatbotID] > 0 {
		day := time.Date(m.clock.Year(), m.clock.Month(), m.clock.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, entities.DailyUsage{Date: day, MessagesSent: m.sent[chatbotID], MessagesReceived: m.received[chatbotID]})
	}
	return out, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	leads    []entities.Lead
	messages []entities.Message
	err      error
}

func (n *recordingNotifier) NotifyLead(_ *entities.Chatbot, lead *entities.Lead) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, *lead)
	return n.err
}

func (n *recordingNotifier) NotifyMessage(_ *entities.Chatbot, msg *entities.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, *msg)
	return n.err
}

type fakeMessenger struct {
	to, content []string
	err         error
}

func (f *fakeMessenger) SendMessage(to, content string) error {
	f.to = append(f.to, to)
	f.content = append(f.content, content)
	return f.err
}

func newTestService(store *memStore, notifier Notifier) *WidgetService {
	svc := NewWidgetService(WidgetDeps{
		Chatbots: store,
		Sessions: store,
		Leads:    store,
		Messages: store,
		Usage:    store,
		Notifier: notifier,
	}, zerolog.Nop())
	svc.dispatch = func(f func()) { f() }
	return svc
}

func seedChatbot(store *memStore, mutate ...func(*entities.Chatbot)) *entities.Chatbot {
	bot := &entities.Chatbot{
		ID:             "bot-1",
		TenantID:       7,
		Name:           "Thorne Support",
		WelcomeMessage: "How can we help?",
		ThemeColor:     "#6366f1",
		IsActive:       true,
	}
	for _, f := range mutate {
		f(bot)
	}
	_ = store.CreateChatbot(context.Background(), bot)
	return bot
}

func janeDoe() entities.VisitorProfile {
	return entities.VisitorProfile{
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@x.com",
		Phone:      "555-0100",
		OptInEmail: true,
	}
}
