package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/chathub/internal/models"
	"github.com/ammar1510/chathub/internal/storage"
)

const maxHistoryLimit = 1000

// MessageHandler serves message history
type MessageHandler struct {
	Store        storage.Store
	DefaultLimit int
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(store storage.Store, defaultLimit int) *MessageHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &MessageHandler{Store: store, DefaultLimit: defaultLimit}
}

// GetMessages returns the newest messages the caller may see
func (h *MessageHandler) GetMessages(c *gin.Context) {
	_, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, ok := h.limit(c)
	if !ok {
		return
	}

	messages, err := h.Store.ListMessages(c.Request.Context(), limit, username)
	if err != nil {
		log.Error("Failed to load history for %s: %v", username, err)
		messages = nil
	}
	c.JSON(http.StatusOK, models.NewMessageViews(messages))
}

// GetConversation returns messages exchanged between the caller and another user
func (h *MessageHandler) GetConversation(c *gin.Context) {
	_, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, ok := h.limit(c)
	if !ok {
		return
	}

	other := c.Param("username")
	messages, err := h.Store.ListConversation(c.Request.Context(), username, other, limit)
	if err != nil {
		log.Error("Failed to load conversation %s/%s: %v", username, other, err)
		messages = nil
	}
	c.JSON(http.StatusOK, models.NewMessageViews(messages))
}

func (h *MessageHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return h.DefaultLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, true
}
