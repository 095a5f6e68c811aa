package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"agyntsynq/internal/embed"
	"agyntsynq/internal/entities"
	"agyntsynq/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type widgetService interface {
	Chatbot(ctx context.Context, chatbotID string) (*entities.Chatbot, error)
	CaptureLead(ctx context.Context, chatbotID, sessionID string, profile entities.VisitorProfile) (string, error)
	SendMessage(ctx context.Context, chatbotID, sessionID, content string) (*usecases.SendResult, error)
	Poll(ctx context.Context, sessionID, since string) ([]entities.Message, error)
}

type chatbotService interface {
	List(ctx context.Context, tenantID int) ([]entities.Chatbot, error)
	Get(ctx context.Context, tenantID int, id string) (*entities.Chatbot, error)
	Create(ctx context.Context, tenantID int, in usecases.ChatbotInput) (*entities.Chatbot, error)
	Update(ctx context.Context, tenantID int, id string, in usecases.ChatbotInput) (*entities.Chatbot, error)
	Leads(ctx context.Context, tenantID int, id string) ([]entities.Lead, error)
	Transcript(ctx context.Context, tenantID int, id, sessionID string) ([]entities.Message, error)
	Reply(ctx context.Context, tenantID int, id, sessionID, text string) (*entities.Message, error)
	Usage(ctx context.Context, tenantID int, id string, days int) ([]entities.DailyUsage, error)
}

type authService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error)
}

// Deps is everything the router needs.
type Deps struct {
	Widget    widgetService
	Chatbots  chatbotService
	Auth      authService
	Generator *embed.Generator
	// ValidateTelegram resolves a bot token to the bot's username.
	ValidateTelegram func(token string) (string, error)
	// Ping reports whether storage is reachable.
	Ping       func(ctx context.Context) error
	Middleware *Middleware
	APIBase    string
	// Proxies whose X-Forwarded-* headers are honored, for client IPs and
	// the embed API base alike.
	Proxies    embed.Proxies
	CORSOrigin []string
	RPS        float64
	Burst      int
	Log        zerolog.Logger
}

func SetupRoutes(r *gin.Engine, d Deps) {
	log := d.Log.With().Str("component", "http").Logger()
	widget := NewWidgetHandler(d.Widget, d.Generator, d.APIBase, d.Proxies, log)
	chatbots := NewChatbotHandler(d.Chatbots, d.APIBase, d.Proxies, log)
	telegram := NewTelegramHandler(d.ValidateTelegram)

	if err := r.SetTrustedProxies(d.Proxies.Strings()); err != nil {
		log.Error().Err(err).Msg("invalid trusted proxies, forwarded headers ignored")
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(RequestLogger(log))
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))
	r.Use(CORS(d.CORSOrigin))

	r.GET("/healthz", healthz(d.Ping))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public widget routes, called from customer sites
	public := r.Group("/api/widget")
	public.Use(d.Middleware.RateLimitPerIP(rate.Limit(d.RPS), d.Burst))
	widget.RegisterRoutes(public)

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	authGroup.Use(d.Middleware.RateLimitPerIP(rate.Limit(d.RPS), d.Burst))
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username" binding:"required"`
				Password string `json:"password" binding:"required"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := d.Auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
			if err != nil {
				if errors.Is(err, usecases.ErrInvalidCredentials) {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
					return
				}
				log.Error().Err(err).Msg("login")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if !ValidSlug(regReq.Username) || len(regReq.Password) < MinPasswordLength {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
				return
			}
			if err := d.Auth.Register(c.Request.Context(), regReq.Username, regReq.Password); err != nil {
				if errors.Is(err, usecases.ErrUsernameTaken) {
					c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
					return
				}
				log.Error().Err(err).Msg("register")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered"})
		})
	}

	// Protected tenant routes
	api := r.Group("/api")
	api.Use(d.Middleware.AuthRequired())
	{
		chatbots.RegisterRoutes(api)
		telegram.RegisterRoutes(api)
	}
}

func healthz(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// statusFor maps usecase errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecases.ErrInvalidLead),
		errors.Is(err, usecases.ErrEmptyMessage),
		errors.Is(err, usecases.ErrMessageTooLong),
		errors.Is(err, usecases.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, usecases.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, usecases.ErrChatbotNotFound),
		errors.Is(err, usecases.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecases.ErrRateLimited),
		errors.Is(err, usecases.ErrLimitReached):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON; internal errors are logged and hidden.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	status := statusFor(err)
	var limited *usecases.RateLimitError
	if errors.As(err, &limited) {
		c.Header("Retry-After", retryAfterSeconds(limited.RetryAfter))
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
