package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes groups the handlers mounted by RegisterRoutes
type Routes struct {
	Auth      *AuthHandler
	Messages  *MessageHandler
	Verifier  Verifier
	WebSocket gin.HandlerFunc
}

// RegisterRoutes mounts the public, protected and websocket routes
func RegisterRoutes(router gin.IRouter, r Routes) {
	// Public routes
	router.POST("/api/auth/register", r.Auth.Register)
	router.POST("/api/auth/login", r.Auth.Login)

	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware(r.Verifier))
	{
		authorized.POST("/auth/logout", r.Auth.Logout)
		authorized.GET("/auth/me", r.Auth.GetMe)
		authorized.GET("/users", r.Auth.GetAllUsers)
		authorized.GET("/users/:id", r.Auth.GetUser)

		authorized.GET("/messages", r.Messages.GetMessages)
		authorized.GET("/messages/conversation/:username", r.Messages.GetConversation)
	}

	// The socket authenticates itself with a join event
	if r.WebSocket != nil {
		router.GET("/ws", r.WebSocket)
	}
}

// Health reports liveness and the storage backend in use. backend returns
// "" while selection is still running.
func Health(backend func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := backend()
		if name == "" {
			c.JSON(http.StatusOK, gin.H{"status": "starting", "storage": "pending"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": name})
	}
}
