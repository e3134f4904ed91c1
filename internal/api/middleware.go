package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/auth"
	"github.com/ammar1510/chathub/internal/logger"
	"github.com/ammar1510/chathub/internal/session"
)

var log = logger.New("api")

// Context keys set by AuthMiddleware
const (
	ContextUserID   = "userID"
	ContextUsername = "username"
)

// Verifier resolves a bearer token to a stored user
type Verifier interface {
	Verify(ctx context.Context, token string) (session.Identity, error)
}

// AuthMiddleware validates the bearer token and sets user info in context.
// Browsers cannot set headers on some requests, so a token query
// parameter is accepted as well.
func AuthMiddleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			log.Error("Token verification failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
			return
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextUsername, id.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// currentUser reads the identity AuthMiddleware stored
func currentUser(c *gin.Context) (uuid.UUID, string, bool) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, "", false
	}
	id, ok := userID.(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	return id, c.GetString(ContextUsername), true
}
