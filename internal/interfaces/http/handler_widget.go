package http

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"
	"time"

	"agyntsynq/internal/embed"
	"agyntsynq/internal/entities"
	"agyntsynq/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const javascriptContentType = "application/javascript; charset=utf-8"

// WidgetHandler serves the embed script and the endpoints it calls.
type WidgetHandler struct {
	widget    widgetService
	generator *embed.Generator
	apiBase   string
	proxies   embed.Proxies
	log       zerolog.Logger
}

func NewWidgetHandler(widget widgetService, generator *embed.Generator, apiBase string, proxies embed.Proxies, log zerolog.Logger) *WidgetHandler {
	return &WidgetHandler{widget: widget, generator: generator, apiBase: apiBase, proxies: proxies, log: log}
}

func (h *WidgetHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/embed.js", h.EmbedScript)
	g.GET("/preview", h.Preview)
	g.GET("/config", h.Config)
	g.POST("/lead", h.CaptureLead)
	g.POST("/message", h.SendMessage)
	g.GET("/message", h.PollMessages)
}

// EmbedScript renders the runtime with the chatbot id burned in. Error
// bodies are JavaScript comments so a misconfigured tag stays inert.
func (h *WidgetHandler) EmbedScript(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		metrics.EmbedsServed.WithLabelValues("missing_id").Inc()
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusBadRequest, javascriptContentType, []byte(embed.MissingIDScript))
		return
	}
	if !ValidChatbotID(id) {
		metrics.EmbedsServed.WithLabelValues("invalid_id").Inc()
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusBadRequest, javascriptContentType, []byte(embed.InvalidIDScript))
		return
	}

	var buf bytes.Buffer
	if err := h.generator.Render(&buf, id, embed.APIBase(c.Request, h.apiBase, h.proxies)); err != nil {
		h.log.Error().Err(err).Str("chatbot_id", id).Msg("render embed script")
		metrics.EmbedsServed.WithLabelValues("error").Inc()
		c.Data(http.StatusInternalServerError, javascriptContentType, []byte("// Error: Widget unavailable\n"))
		return
	}
	metrics.EmbedsServed.WithLabelValues("ok").Inc()
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, javascriptContentType, buf.Bytes())
}

// Config returns the presentation settings of an active chatbot.
func (h *WidgetHandler) Config(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	id := c.Query("id")
	if !ValidChatbotID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid chatbot id"})
		return
	}
	bot, err := h.widget.Chatbot(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chatbot": bot.WidgetConfig()})
}

type visitorInfoRequest struct {
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email" binding:"omitempty,email"`
	Phone       string    `json:"phone"`
	OptInEmail  bool      `json:"optInEmail"`
	OptInSMS    bool      `json:"optInSms"`
	OptInPhone  bool      `json:"optInPhone"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (v visitorInfoRequest) profile() entities.VisitorProfile {
	return entities.VisitorProfile{
		FirstName:   SanitizeString(v.FirstName),
		LastName:    SanitizeString(v.LastName),
		Email:       SanitizeString(v.Email),
		Phone:       SanitizeString(v.Phone),
		OptInEmail:  v.OptInEmail,
		OptInSMS:    v.OptInSMS,
		OptInPhone:  v.OptInPhone,
		SubmittedAt: v.SubmittedAt.UTC(),
	}
}

type leadRequest struct {
	ChatbotID   string             `json:"chatbotId" binding:"required"`
	SessionID   string             `json:"sessionId"`
	VisitorInfo visitorInfoRequest `json:"visitorInfo"`
}

func (h *WidgetHandler) CaptureLead(c *gin.Context) {
	var req leadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if !ValidChatbotID(req.ChatbotID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chatbot id"})
		return
	}

	sessionID, err := h.widget.CaptureLead(c.Request.Context(), req.ChatbotID, req.SessionID, req.VisitorInfo.profile())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": sessionID})
}

type messageRequest struct {
	ChatbotID string `json:"chatbotId" binding:"required"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message" binding:"required"`
}

func (h *WidgetHandler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if !ValidChatbotID(req.ChatbotID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chatbot id"})
		return
	}

	res, err := h.widget.SendMessage(c.Request.Context(), req.ChatbotID, req.SessionID, SanitizeString(req.Message))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": res.SessionID,
		"chatbot":   res.Chatbot.WidgetConfig(),
	})
}

// PollMessages returns the messages created after since, oldest first.
func (h *WidgetHandler) PollMessages(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	msgs, err := h.widget.Poll(c.Request.Context(), sessionID, c.Query("since"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if msgs == nil {
		msgs = []entities.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

var previewPage = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}} widget preview</title>
<style>body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;margin:40px;color:#111827}</style>
</head>
<body>
<h1>{{.Name}}</h1>
<p>This page previews the chat widget. Open it with the button in the corner.</p>
<script src="{{.ScriptURL}}" async></script>
</body>
</html>
`))

// Preview serves a bare page that embeds the widget, used by the QR code.
func (h *WidgetHandler) Preview(c *gin.Context) {
	id := c.Query("id")
	if !ValidChatbotID(id) {
		c.String(http.StatusBadRequest, "Missing or invalid chatbot id")
		return
	}
	bot, err := h.widget.Chatbot(c.Request.Context(), id)
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			c.String(http.StatusNotFound, "Chatbot not found")
			return
		}
		respondError(c, h.log, err)
		return
	}

	var buf bytes.Buffer
	err = previewPage.Execute(&buf, struct {
		Name      string
		ScriptURL string
	}{
		Name:      bot.Name,
		ScriptURL: embed.APIBase(c.Request, h.apiBase, h.proxies) + "/api/widget/embed.js?id=" + id,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
