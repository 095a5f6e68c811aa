package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"agyntsynq/internal/entities"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory widget API with one chatbot.
type fakeBackend struct {
	mu          sync.Mutex
	config      *entities.WidgetConfig
	configErr   error
	configCalls int
	leads       []LeadRequest
	sends       []SendRequest
	polls       []string
	sessions    int
	history     map[string][]ChatMessage
	clock       int
	reply       string
	sendHook    func(req SendRequest) (*SendResponse, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		config:  &entities.WidgetConfig{Name: "Thorne Support", WelcomeMessage: "How can we help?", ThemeColor: "#0ea5e9"},
		history: make(map[string][]ChatMessage),
		reply:   "Thanks! An agent will be with you shortly.",
	}
}

func (b *fakeBackend) FetchConfig(ctx context.Context, chatbotID string) (*entities.WidgetConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configCalls++
	if b.configErr != nil {
		return nil, b.configErr
	}
	cfg := *b.config
	return &cfg, nil
}

func (b *fakeBackend) SubmitLead(ctx context.Context, req LeadRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leads = append(b.leads, req)
	if req.SessionID != "" {
		return req.SessionID, nil
	}
	return b.newSessionLocked(), nil
}

func (b *fakeBackend) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	b.mu.Lock()
	hook := b.sendHook
	b.mu.Unlock()
	if hook != nil {
		return hook(req)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, req)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = b.newSessionLocked()
	}
	b.addLocked(sessionID, entities.SenderVisitor, req.Message)
	b.addLocked(sessionID, entities.SenderAI, b.reply)
	cfg := *b.config
	return &SendResponse{SessionID: sessionID, Chatbot: &cfg}, nil
}

func (b *fakeBackend) Poll(ctx context.Context, sessionID, since string) ([]ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls = append(b.polls, since)
	var out []ChatMessage
	for _, m := range b.history[sessionID] {
		if since == "" || m.CreatedAt > since {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) newSessionLocked() string {
	b.sessions++
	return fmt.Sprintf("s-%d", b.sessions)
}

func (b *fakeBackend) addLocked(sessionID, sender, content string) {
	b.clock++
	b.history[sessionID] = append(b.history[sessionID], ChatMessage{
		ID:         fmt.Sprintf("m-%d", b.clock),
		Content:    content,
		SenderType: sender,
		CreatedAt:  fmt.Sprintf("2026-01-01T00:00:%02d.000Z", b.clock),
	})
}

func (b *fakeBackend) add(sessionID, sender, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(sessionID, sender, content)
}

func (b *fakeBackend) leadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.leads)
}

func (b *fakeBackend) configCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configCalls
}

// recordingView keeps the rendered shell in memory.
type recordingView struct {
	mu           sync.Mutex
	mounted      bool
	mounts       int
	presentation Presentation
	pane         string
	formError    string
	messages     []DisplayMessage
	open         bool
	focused      int
}

func (v *recordingView) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

func (v *recordingView) Mount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mounted = true
	v.mounts++
}

func (v *recordingView) ApplyPresentation(p Presentation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.presentation = p
}

func (v *recordingView) ShowLeadForm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pane = "lead"
}

func (v *recordingView) ShowChat() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pane = "chat"
}

func (v *recordingView) ShowFormError(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.formError = msg
}

func (v *recordingView) ClearMessages() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = nil
}

func (v *recordingView) AppendMessage(m DisplayMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, m)
}

func (v *recordingView) SetOpen(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open = open
}

func (v *recordingView) FocusInput() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focused++
}

func (v *recordingView) unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mounted = false
	v.messages = nil
}

type viewState struct {
	mounted      bool
	mounts       int
	presentation Presentation
	pane         string
	formError    string
	messages     []DisplayMessage
	open         bool
	focused      int
}

func (v *recordingView) snapshot() viewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return viewState{
		mounted:      v.mounted,
		mounts:       v.mounts,
		presentation: v.presentation,
		pane:         v.pane,
		formError:    v.formError,
		messages:     append([]DisplayMessage(nil), v.messages...),
		open:         v.open,
		focused:      v.focused,
	}
}

func contents(msgs []DisplayMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

var errBackendDown = errors.New("connection refused")

type harness struct {
	backend *fakeBackend
	view    *recordingView
	storage *MemoryStorage
	widget  *Instance
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		view:    &recordingView{},
		storage: NewMemoryStorage(),
	}
	opts := Options{
		ChatbotID:         "bot-1",
		API:               h.backend,
		Storage:           h.storage,
		View:              h.view,
		PollInterval:      10 * time.Millisecond,
		SuperviseInterval: time.Hour,
		RequestTimeout:    time.Second,
		ConfigBackoff:     time.Millisecond,
		Log:               zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	w, err := New(opts)
	require.NoError(t, err)
	h.widget = w
	t.Cleanup(w.Close)
	return h
}

func (h *harness) store() *SessionStore {
	return NewSessionStore(h.storage, "bot-1", zerolog.Nop())
}

func janeForm() LeadForm {
	return LeadForm{
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@example.com",
		Phone:      "+1 555 0100",
		OptInEmail: true,
	}
}

// seeded writes widget state to storage before the instance is built, the
// way an earlier page load would have left it.
func seeded(seed func(s *SessionStore)) func(*Options) {
	return func(o *Options) {
		seed(NewSessionStore(o.Storage, o.ChatbotID, zerolog.Nop()))
	}
}

// returningVisitor seeds Jane's profile and, when sessionID is set, her session.
func returningVisitor(sessionID string) func(*Options) {
	return seeded(func(s *SessionStore) {
		s.SetVisitor(janeForm().profile(time.Now()))
		if sessionID != "" {
			s.SetSessionID(sessionID)
		}
	})
}
