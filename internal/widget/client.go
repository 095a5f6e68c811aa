package widget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agyntsynq/internal/entities"

	"github.com/go-resty/resty/v2"
)

// ChatMessage is one message as the poll endpoint returns it. CreatedAt is
// kept verbatim because it is echoed back as the since cursor.
type ChatMessage struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderType string `json:"sender_type"`
	CreatedAt  string `json:"created_at"`
}

type LeadRequest struct {
	ChatbotID   string                  `json:"chatbotId"`
	SessionID   string                  `json:"sessionId,omitempty"`
	VisitorInfo entities.VisitorProfile `json:"visitorInfo"`
}

type SendRequest struct {
	ChatbotID string `json:"chatbotId"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type SendResponse struct {
	SessionID string                 `json:"sessionId"`
	Chatbot   *entities.WidgetConfig `json:"chatbot"`
}

// API is the widget backend.
type API interface {
	FetchConfig(ctx context.Context, chatbotID string) (*entities.WidgetConfig, error)
	SubmitLead(ctx context.Context, req LeadRequest) (string, error)
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
	Poll(ctx context.Context, sessionID, since string) ([]ChatMessage, error)
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, strings.TrimSpace(e.Body))
}

// Client talks to a widget server over HTTP.
type Client struct {
	http *resty.Client
}

func NewClient(apiBase string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(apiBase, "/")).
		SetHeader("User-Agent", "agyntsynq-widget/1.0").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{http: httpClient}
}

// request decodes every response body as JSON, whatever its Content-Type.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).ForceContentType("application/json")
}

func (c *Client) FetchConfig(ctx context.Context, chatbotID string) (*entities.WidgetConfig, error) {
	var out struct {
		Chatbot *entities.WidgetConfig `json:"chatbot"`
	}
	resp, err := c.request(ctx).
		SetHeader("Cache-Control", "no-store").
		SetQueryParam("id", chatbotID).
		SetResult(&out).
		Get("/api/widget/config")
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Op: "fetch config", Status: resp.StatusCode(), Body: resp.String()}
	}
	if out.Chatbot == nil {
		return nil, fmt.Errorf("fetch config: response has no chatbot")
	}
	return out.Chatbot, nil
}

func (c *Client) SubmitLead(ctx context.Context, req LeadRequest) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post("/api/widget/lead")
	if err != nil {
		return "", fmt.Errorf("submit lead: %w", err)
	}
	if resp.IsError() {
		return "", &StatusError{Op: "submit lead", Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.SessionID, nil
}

func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	var out SendResponse
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post("/api/widget/message")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Op: "send message", Status: resp.StatusCode(), Body: resp.String()}
	}
	return &out, nil
}

func (c *Client) Poll(ctx context.Context, sessionID, since string) ([]ChatMessage, error) {
	var out struct {
		Messages []ChatMessage `json:"messages"`
	}
	req := c.request(ctx).
		SetQueryParam("sessionId", sessionID).
		SetResult(&out)
	if since != "" {
		req.SetQueryParam("since", since)
	}
	resp, err := req.Get("/api/widget/message")
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Op: "poll", Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.Messages, nil
}
