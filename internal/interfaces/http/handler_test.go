package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agyntsynq/internal/embed"
	"agyntsynq/internal/entities"
	"agyntsynq/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type mockWidget struct {
	ChatbotFunc     func(ctx context.Context, chatbotID string) (*entities.Chatbot, error)
	CaptureLeadFunc func(ctx context.Context, chatbotID, sessionID string, profile entities.VisitorProfile) (string, error)
	SendMessageFunc func(ctx context.Context, chatbotID, sessionID, content string) (*usecases.SendResult, error)
	PollFunc        func(ctx context.Context, sessionID, since string) ([]entities.Message, error)
}

func (m *mockWidget) Chatbot(ctx context.Context, chatbotID string) (*entities.Chatbot, error) {
	if m.ChatbotFunc != nil {
		return m.ChatbotFunc(ctx, chatbotID)
	}
	return nil, usecases.ErrChatbotNotFound
}

func (m *mockWidget) CaptureLead(ctx context.Context, chatbotID, sessionID string, profile entities.VisitorProfile) (string, error) {
	if m.CaptureLeadFunc != nil {
		return m.CaptureLeadFunc(ctx, chatbotID, sessionID, profile)
	}
	return "", nil
}

func (m *mockWidget) SendMessage(ctx context.Context, chatbotID, sessionID, content string) (*usecases.SendResult, error) {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chatbotID, sessionID, content)
	}
	return nil, fmt.Errorf("SendMessage not mocked")
}

func (m *mockWidget) Poll(ctx context.Context, sessionID, since string) ([]entities.Message, error) {
	if m.PollFunc != nil {
		return m.PollFunc(ctx, sessionID, since)
	}
	return nil, nil
}

type mockChatbots struct {
	ListFunc       func(ctx context.Context, tenantID int) ([]entities.Chatbot, error)
	GetFunc        func(ctx context.Context, tenantID int, id string) (*entities.Chatbot, error)
	CreateFunc     func(ctx context.Context, tenantID int, in usecases.ChatbotInput) (*entities.Chatbot, error)
	UpdateFunc     func(ctx context.Context, tenantID int, id string, in usecases.ChatbotInput) (*entities.Chatbot, error)
	LeadsFunc      func(ctx context.Context, tenantID int, id string) ([]entities.Lead, error)
	TranscriptFunc func(ctx context.Context, tenantID int, id, sessionID string) ([]entities.Message, error)
	ReplyFunc      func(ctx context.Context, tenantID int, id, sessionID, text string) (*entities.Message, error)
	UsageFunc      func(ctx context.Context, tenantID int, id string, days int) ([]entities.DailyUsage, error)
}

func (m *mockChatbots) List(ctx context.Context, tenantID int) ([]entities.Chatbot, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockChatbots) Get(ctx context.Context, tenantID int, id string) (*entities.Chatbot, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tenantID, id)
	}
	return nil, usecases.ErrChatbotNotFound
}

func (m *mockChatbots) Create(ctx context.Context, tenantID int, in usecases.ChatbotInput) (*entities.Chatbot, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tenantID, in)
	}
	return nil, fmt.Errorf("Create not mocked")
}

func (m *mockChatbots) Update(ctx context.Context, tenantID int, id string, in usecases.ChatbotInput) (*entities.Chatbot, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tenantID, id, in)
	}
	return nil, fmt.Errorf("Update not mocked")
}

func (m *mockChatbots) Leads(ctx context.Context, tenantID int, id string) ([]entities.Lead, error) {
	if m.LeadsFunc != nil {
		return m.LeadsFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockChatbots) Transcript(ctx context.Context, tenantID int, id, sessionID string) ([]entities.Message, error) {
	if m.TranscriptFunc != nil {
		return m.TranscriptFunc(ctx, tenantID, id, sessionID)
	}
	return nil, nil
}

func (m *mockChatbots) Reply(ctx context.Context, tenantID int, id, sessionID, text string) (*entities.Message, error) {
	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, tenantID, id, sessionID, text)
	}
	return nil, fmt.Errorf("Reply not mocked")
}

func (m *mockChatbots) Usage(ctx context.Context, tenantID int, id string, days int) ([]entities.DailyUsage, error) {
	if m.UsageFunc != nil {
		return m.UsageFunc(ctx, tenantID, id, days)
	}
	return nil, nil
}

type mockAuth struct {
	RegisterFunc func(ctx context.Context, username, password string) error
	LoginFunc    func(ctx context.Context, username, password string) (string, error)
}

func (m *mockAuth) Register(ctx context.Context, username, password string) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, password)
	}
	return nil
}

func (m *mockAuth) Login(ctx context.Context, username, password string) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	return "", usecases.ErrInvalidCredentials
}

type testServer struct {
	router   *gin.Engine
	widget   *mockWidget
	chatbots *mockChatbots
	auth     *mockAuth
}

func newTestServer(t *testing.T, mutate ...func(*Deps)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gen, err := embed.NewGenerator(embed.DefaultTiming())
	require.NoError(t, err)

	ts := &testServer{router: gin.New(), widget: &mockWidget{}, chatbots: &mockChatbots{}, auth: &mockAuth{}}
	deps := Deps{
		Widget:     ts.widget,
		Chatbots:   ts.chatbots,
		Auth:       ts.auth,
		Generator:  gen,
		Middleware: NewMiddleware(testSecret),
		RPS:        100,
		Burst:      100,
		Log:        zerolog.Nop(),
	}
	for _, f := range mutate {
		f(&deps)
	}
	SetupRoutes(ts.router, deps)
	return ts
}

func (ts *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, userID int) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    "user",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestEmbedScript(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing id", func(t *testing.T) {
		w := ts.do("GET", "/api/widget/embed.js", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "// Error: Missing chatbot ID"))
		assert.Contains(t, w.Header().Get("Content-Type"), "application/javascript")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("invalid id", func(t *testing.T) {
		w := ts.do("GET", "/api/widget/embed.js?id=%22%3Balert(1)", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "// Error: Invalid chatbot ID"))
	})

	t.Run("renders script", func(t *testing.T) {
		proxies, err := embed.ParseProxies([]string{"192.0.2.0/24"})
		require.NoError(t, err)
		ts := newTestServer(t, func(d *Deps) { d.Proxies = proxies })
		w := ts.do("GET", "/api/widget/embed.js?id=bot1", "",
			"X-Forwarded-Proto", "https", "X-Forwarded-Host", "chat.example.com")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Body.String(), `var CHATBOT_ID = "bot1";`)
		assert.Contains(t, w.Body.String(), `var API_BASE = "https://chat.example.com";`)
	})

	t.Run("forwarded headers from untrusted peer", func(t *testing.T) {
		w := ts.do("GET", "/api/widget/embed.js?id=bot1", "",
			"X-Forwarded-Proto", "https", "X-Forwarded-Host", "attacker.example")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "attacker.example")
		assert.Contains(t, w.Body.String(), `var API_BASE = "http://example.com";`)
	})

	t.Run("api base override", func(t *testing.T) {
		ts := newTestServer(t, func(d *Deps) { d.APIBase = "https://api.agyntsynq.io" })
		w := ts.do("GET", "/api/widget/embed.js?id=bot1", "")
		assert.Contains(t, w.Body.String(), `var API_BASE = "https://api.agyntsynq.io";`)
	})
}

func TestWidgetConfig(t *testing.T) {
	ts := newTestServer(t)
	ts.widget.ChatbotFunc = func(_ context.Context, id string) (*entities.Chatbot, error) {
		if id != "bot1" {
			return nil, usecases.ErrChatbotNotFound
		}
		return &entities.Chatbot{ID: "bot1", Name: "Thorne", WelcomeMessage: "Hello!", ThemeColor: "#112233", IsActive: true}, nil
	}

	w := ts.do("GET", "/api/widget/config?id=bot1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	chatbot := decode(t, w)["chatbot"].(map[string]interface{})
	assert.Equal(t, "Thorne", chatbot["name"])
	assert.Equal(t, "Hello!", chatbot["welcomeMessage"])
	assert.Equal(t, "Hello!", chatbot["welcome_message"])
	assert.Equal(t, "#112233", chatbot["themeColor"])

	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/api/widget/config?id=nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/widget/config", "").Code)
}

func TestCaptureLead(t *testing.T) {
	ts := newTestServer(t)
	var got entities.VisitorProfile
	ts.widget.CaptureLeadFunc = func(_ context.Context, chatbotID, sessionID string, p entities.VisitorProfile) (string, error) {
		got = p
		if !p.HasConsent() {
			return "", fmt.Errorf("%w: %w", usecases.ErrInvalidLead, entities.ErrNoConsent)
		}
		return "sess-1", nil
	}

	body := `{"chatbotId":"bot1","visitorInfo":{"firstName":"Jane","lastName":"Doe","email":"jane@x.com","phone":"555-0100","optInEmail":true,"submittedAt":"2026-03-01T09:00:00.000Z"}}`
	w := ts.do("POST", "/api/widget/lead", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sess-1", decode(t, w)["sessionId"])
	assert.True(t, got.OptInEmail)
	assert.Equal(t, "Jane", got.FirstName)

	noConsent := strings.Replace(body, `"optInEmail":true`, `"optInEmail":false`, 1)
	w = ts.do("POST", "/api/widget/lead", noConsent)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "communication preference")

	got = entities.VisitorProfile{}
	badEmail := strings.Replace(body, "jane@x.com", "not-an-email", 1)
	w = ts.do("POST", "/api/widget/lead", badEmail)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, got.FirstName, "service must not be called")
}

func TestSendMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.widget.SendMessageFunc = func(_ context.Context, chatbotID, sessionID, content string) (*usecases.SendResult, error) {
		if content == "over" {
			return nil, usecases.ErrLimitReached
		}
		return &usecases.SendResult{
			SessionID: "sess-9",
			Chatbot:   &entities.Chatbot{ID: chatbotID, Name: "Thorne", ThemeColor: "#6366f1"},
		}, nil
	}

	w := ts.do("POST", "/api/widget/message", `{"chatbotId":"bot1","message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "sess-9", out["sessionId"])
	assert.Equal(t, "Thorne", out["chatbot"].(map[string]interface{})["name"])

	over := ts.do("POST", "/api/widget/message", `{"chatbotId":"bot1","message":"over"}`)
	assert.Equal(t, http.StatusTooManyRequests, over.Code)
	assert.Empty(t, over.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/widget/message", `{"chatbotId":"bot1"}`).Code)
}

func TestSendMessageThrottledSetsRetryAfter(t *testing.T) {
	ts := newTestServer(t)
	ts.widget.SendMessageFunc = func(context.Context, string, string, string) (*usecases.SendResult, error) {
		return nil, &usecases.RateLimitError{RetryAfter: 2300 * time.Millisecond}
	}

	w := ts.do("POST", "/api/widget/message", `{"chatbotId":"bot1","sessionId":"s1","message":"again"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	assert.Equal(t, usecases.ErrRateLimited.Error(), decode(t, w)["error"])
}

func TestPollMessages(t *testing.T) {
	ts := newTestServer(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 123456000, time.UTC)
	var gotSince string
	ts.widget.PollFunc = func(_ context.Context, sessionID, since string) ([]entities.Message, error) {
		gotSince = since
		if since == "bad" {
			return nil, usecases.ErrInvalidCursor
		}
		return []entities.Message{{ID: "m1", SessionID: sessionID, Content: "Hi <b>", SenderType: entities.SenderAI, CreatedAt: created}}, nil
	}

	w := ts.do("GET", "/api/widget/message?sessionId=s1&since=2026-03-01T08:59:59Z", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-01T08:59:59Z", gotSince)
	msgs := decode(t, w)["messages"].([]interface{})
	require.Len(t, msgs, 1)
	m := msgs[0].(map[string]interface{})
	assert.Equal(t, "Hi <b>", m["content"])
	assert.Equal(t, "ai", m["sender_type"])
	assert.Equal(t, "2026-03-01T09:00:00.123456Z", m["created_at"])

	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/widget/message", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/widget/message?sessionId=s1&since=bad", "").Code)
}

func TestWidgetCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do("OPTIONS", "/api/widget/message", "",
		"Origin", "https://customer.example",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "Content-Type")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitPerIP(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.RPS = 0.001; d.Burst = 2 })
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, ts.do("GET", "/api/widget/message?sessionId=s1", "").Code)
	}
	w := ts.do("GET", "/api/widget/message?sessionId=s1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.RPS = 0.001; d.Burst = 2 })
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := ts.do("GET", "/api/widget/message?sessionId=s1", "",
			"X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do("GET", "/healthz", "").Code)

	down := newTestServer(t, func(d *Deps) {
		d.Ping = func(context.Context) error { return fmt.Errorf("connection refused") }
	})
	assert.Equal(t, http.StatusServiceUnavailable, down.do("GET", "/healthz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do("GET", "/api/widget/embed.js", "")

	w := ts.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "widget_embeds_served_total")
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.LoginFunc = func(_ context.Context, username, password string) (string, error) {
		if password == "right-pass" {
			return "tok", nil
		}
		return "", usecases.ErrInvalidCredentials
	}
	ts.auth.RegisterFunc = func(_ context.Context, username, _ string) error {
		if username == "taken" {
			return usecases.ErrUsernameTaken
		}
		return nil
	}

	w := ts.do("POST", "/api/auth/login", `{"username":"ana","password":"right-pass"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", decode(t, w)["token"])
	assert.Equal(t, http.StatusUnauthorized, ts.do("POST", "/api/auth/login", `{"username":"ana","password":"nope"}`).Code)

	assert.Equal(t, http.StatusCreated, ts.do("POST", "/api/auth/register", `{"username":"ana","password":"secret1"}`).Code)
	assert.Equal(t, http.StatusConflict, ts.do("POST", "/api/auth/register", `{"username":"taken","password":"secret1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/auth/register", `{"username":"a b","password":"secret1"}`).Code)
}
