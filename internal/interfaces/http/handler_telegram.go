package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TelegramHandler helps tenants set up lead and message notifications.
type TelegramHandler struct {
	validate func(token string) (string, error)
}

func NewTelegramHandler(validate func(token string) (string, error)) *TelegramHandler {
	return &TelegramHandler{validate: validate}
}

func (h *TelegramHandler) RegisterRoutes(api *gin.RouterGroup) {
	tg := api.Group("/telegram")
	{
		tg.POST("/validate", h.ValidateToken)
	}
}

// ValidateToken checks if a token is valid without saving
func (h *TelegramHandler) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if h.validate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telegram not configured"})
		return
	}

	botName, err := h.validate(strings.TrimSpace(req.Token))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"bot_name": "@" + botName,
	})
}
