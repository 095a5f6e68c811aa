package http

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"agyntsynq/internal/embed"
	"agyntsynq/internal/entities"
	"agyntsynq/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

// ChatbotHandler is the tenant console API over chatbots and their leads
// and conversations.
type ChatbotHandler struct {
	chatbots chatbotService
	apiBase  string
	proxies  embed.Proxies
	log      zerolog.Logger
}

func NewChatbotHandler(chatbots chatbotService, apiBase string, proxies embed.Proxies, log zerolog.Logger) *ChatbotHandler {
	return &ChatbotHandler{chatbots: chatbots, apiBase: apiBase, proxies: proxies, log: log}
}

func (h *ChatbotHandler) RegisterRoutes(api *gin.RouterGroup) {
	bots := api.Group("/chatbots")
	{
		bots.GET("", h.List)
		bots.POST("", h.Create)
		bots.GET("/:id", h.Get)
		bots.PUT("/:id", h.Update)
		bots.GET("/:id/leads", h.Leads)
		bots.GET("/:id/leads.csv", h.ExportLeads)
		bots.GET("/:id/usage", h.Usage)
		bots.GET("/:id/sessions/:sid/messages", h.Transcript)
		bots.POST("/:id/sessions/:sid/reply", h.Reply)
		bots.GET("/:id/snippet", h.Snippet)
		bots.GET("/:id/qr.png", h.QRCode)
	}
}

// tenant returns the user id from the JWT or aborts with 401.
func tenant(c *gin.Context) (int, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

func (h *ChatbotHandler) List(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	bots, err := h.chatbots.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if bots == nil {
		bots = []entities.Chatbot{}
	}
	c.JSON(http.StatusOK, bots)
}

func (h *ChatbotHandler) Get(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	bot, err := h.chatbots.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

// bindChatbotInput validates the editable fields; it writes the 400 itself.
func bindChatbotInput(c *gin.Context) (usecases.ChatbotInput, bool) {
	var in usecases.ChatbotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return in, false
	}
	in.Name = SanitizeString(in.Name)
	in.WelcomeMessage = SanitizeString(in.WelcomeMessage)
	switch {
	case !ValidateLength(in.Name, 1, MaxNameLength):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required (max 120 chars)"})
	case !ValidateLength(in.WelcomeMessage, 0, MaxWelcomeLength):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Welcome message is too long (max 1000 chars)"})
	case !ValidThemeColor(in.ThemeColor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Theme color must be a hex color like #6366f1"})
	case in.DailyLimit < 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Daily limit must not be negative"})
	default:
		return in, true
	}
	return in, false
}

func (h *ChatbotHandler) Create(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	in, ok := bindChatbotInput(c)
	if !ok {
		return
	}
	bot, err := h.chatbots.Create(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *ChatbotHandler) Update(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	in, ok := bindChatbotInput(c)
	if !ok {
		return
	}
	bot, err := h.chatbots.Update(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *ChatbotHandler) Leads(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	leads, err := h.chatbots.Leads(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if leads == nil {
		leads = []entities.Lead{}
	}
	c.JSON(http.StatusOK, leads)
}

// Usage returns daily message counters; ?days= selects the window.
func (h *ChatbotHandler) Usage(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	days, _ := strconv.Atoi(c.Query("days"))
	usage, err := h.chatbots.Usage(c.Request.Context(), userID, c.Param("id"), days)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if usage == nil {
		usage = []entities.DailyUsage{}
	}
	c.JSON(http.StatusOK, gin.H{"chatbot_id": c.Param("id"), "usage": usage})
}

var leadCSVHeader = []string{
	"created_at", "session_id", "first_name", "last_name", "email", "phone",
	"opt_in_email", "opt_in_sms", "opt_in_phone",
}

// ExportLeads streams the chatbot's leads as CSV.
func (h *ChatbotHandler) ExportLeads(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	id := c.Param("id")
	leads, err := h.chatbots.Leads(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="leads-`+id+`.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(leadCSVHeader)
	for _, l := range leads {
		p := l.Profile
		_ = w.Write([]string{
			l.CreatedAt.UTC().Format(time.RFC3339),
			l.SessionID,
			csvSafe(p.FirstName),
			csvSafe(p.LastName),
			csvSafe(p.Email),
			csvSafe(p.Phone),
			strconv.FormatBool(p.OptInEmail),
			strconv.FormatBool(p.OptInSMS),
			strconv.FormatBool(p.OptInPhone),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.log.Warn().Err(err).Str("chatbot_id", id).Msg("write leads csv")
	}
}

// csvSafe neutralizes values a spreadsheet would evaluate as a formula.
func csvSafe(s string) string {
	if s != "" && (s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@') {
		return "'" + s
	}
	return s
}

func (h *ChatbotHandler) Transcript(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	msgs, err := h.chatbots.Transcript(c.Request.Context(), userID, c.Param("id"), c.Param("sid"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if msgs == nil {
		msgs = []entities.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("sid"), "messages": msgs})
}

func (h *ChatbotHandler) Reply(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	msg, err := h.chatbots.Reply(c.Request.Context(), userID, c.Param("id"), c.Param("sid"), SanitizeString(req.Message))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatbotHandler) Snippet(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	bot, err := h.chatbots.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	base := embed.APIBase(c.Request, h.apiBase, h.proxies)
	c.JSON(http.StatusOK, gin.H{
		"snippet":     embed.Snippet(base, bot.ID),
		"embed_url":   base + "/api/widget/embed.js?id=" + bot.ID,
		"preview_url": previewURL(base, bot.ID),
	})
}

// QRCode returns a PNG pointing at the chatbot's preview page so the
// widget can be tried from a phone.
func (h *ChatbotHandler) QRCode(c *gin.Context) {
	userID, ok := tenant(c)
	if !ok {
		return
	}
	bot, err := h.chatbots.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	size := 256
	if s, err := strconv.Atoi(c.Query("size")); err == nil && s >= 128 && s <= 1024 {
		size = s
	}
	png, err := qrcode.Encode(previewURL(embed.APIBase(c.Request, h.apiBase, h.proxies), bot.ID), qrcode.Medium, size)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func previewURL(base, chatbotID string) string {
	return base + "/api/widget/preview?id=" + chatbotID
}
