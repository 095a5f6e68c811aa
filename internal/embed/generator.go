// Package embed renders the browser runtime served by /api/widget/embed.js.
package embed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"text/template"
	"time"

	"agyntsynq/internal/entities"
)

//go:embed runtime.js.tmpl
var runtimeSource string

const (
	MissingIDScript = "// Error: Missing chatbot ID. Load this script as embed.js?id=<chatbot id>\n"
	InvalidIDScript = "// Error: Invalid chatbot ID\n"
)

var chatbotIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidChatbotID reports whether id may be burned into a script.
func ValidChatbotID(id string) bool {
	return chatbotIDPattern.MatchString(id)
}

// Timing holds the runtime's intervals.
type Timing struct {
	PollInterval      time.Duration
	SuperviseInterval time.Duration
	RequestTimeout    time.Duration
	ConfigAttempts    int
	ConfigBackoff     time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		PollInterval:      2 * time.Second,
		SuperviseInterval: 30 * time.Second,
		RequestTimeout:    10 * time.Second,
		ConfigAttempts:    3,
		ConfigBackoff:     2 * time.Second,
	}
}

type Generator struct {
	tmpl   *template.Template
	timing Timing
}

type scriptData struct {
	ChatbotID           string
	APIBase             string
	PollIntervalMs      int64
	SuperviseIntervalMs int64
	RequestTimeoutMs    int64
	ConfigAttempts      int
	ConfigBackoffMs     int64
	DefaultTheme        string
	DefaultName         string
}

// NewGenerator parses the runtime template once.
func NewGenerator(timing Timing) (*Generator, error) {
	tmpl, err := template.New("runtime.js").Parse(runtimeSource)
	if err != nil {
		return nil, fmt.Errorf("parse runtime template: %w", err)
	}
	return &Generator{tmpl: tmpl, timing: timing}, nil
}

// Render writes the runtime for chatbotID talking to apiBase. Both values
// are emitted as JSON string literals.
func (g *Generator) Render(w io.Writer, chatbotID, apiBase string) error {
	if !ValidChatbotID(chatbotID) {
		return fmt.Errorf("invalid chatbot id %q", chatbotID)
	}
	data := scriptData{
		ChatbotID:           jsString(chatbotID),
		APIBase:             jsString(apiBase),
		PollIntervalMs:      g.timing.PollInterval.Milliseconds(),
		SuperviseIntervalMs: g.timing.SuperviseInterval.Milliseconds(),
		RequestTimeoutMs:    g.timing.RequestTimeout.Milliseconds(),
		ConfigAttempts:      g.timing.ConfigAttempts,
		ConfigBackoffMs:     g.timing.ConfigBackoff.Milliseconds(),
		DefaultTheme:        jsString(entities.DefaultThemeColor),
		DefaultName:         jsString(entities.DefaultWidgetName),
	}
	return g.tmpl.Execute(w, data)
}

// jsString quotes s as a JavaScript string literal. json.Marshal escapes
// <, > and & as well as U+2028/U+2029, so the result is safe in a script.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// APIBase returns override when set, otherwise the origin the request
// was made to. X-Forwarded-Proto and X-Forwarded-Host count only when the
// peer is a trusted proxy: the result ends up in a publicly cached script.
func APIBase(r *http.Request, override string, proxies Proxies) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if !proxies.Trusts(r.RemoteAddr) {
		return scheme + "://" + r.Host
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.Host
	if fwd := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// Snippet is the tag a tenant pastes into their site.
func Snippet(apiBase, chatbotID string) string {
	return fmt.Sprintf(`<script src="%s/api/widget/embed.js?id=%s" async></script>`, apiBase, chatbotID)
}
