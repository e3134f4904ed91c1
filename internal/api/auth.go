package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/auth"
	"github.com/ammar1510/chathub/internal/models"
	"github.com/ammar1510/chathub/internal/storage"
)

// SessionEnder closes a user's live chat sessions. *chat.Hub implements it.
type SessionEnder interface {
	Logout(ctx context.Context, userID uuid.UUID) int
}

// AuthHandler handles authentication and user routes
type AuthHandler struct {
	Store    storage.Store
	JWT      *auth.JWT
	Sessions SessionEnder
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store storage.Store, j *auth.JWT, sessions SessionEnder) *AuthHandler {
	return &AuthHandler{Store: store, JWT: j, Sessions: sessions}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.UserRegistration
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	existing, err := h.Store.FindUserByEmail(ctx, input.Email)
	if err != nil {
		storageError(c, "Failed to create user", err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}

	hashedPassword, err := auth.HashPassword(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user, err := h.Store.CreateUser(ctx, input.Username, input.Email, hashedPassword)
	if errors.Is(err, storage.ErrUsernameTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
		return
	}
	if err != nil {
		storageError(c, "Failed to create user", err)
		return
	}
	// CreateUser hands back the existing row when another registration
	// for this email got there first
	if user.PasswordHash != hashedPassword || user.Username != input.Username {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}

	token, expiry, err := h.JWT.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	log.Info("Registered user %s", user.Username)
	c.JSON(http.StatusCreated, gin.H{
		"token":  token,
		"expiry": expiry,
		"user":   models.NewUserResponse(user),
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.FindUserByEmail(c.Request.Context(), input.Email)
	if err != nil {
		storageError(c, "Failed to retrieve user", err)
		return
	}
	if user == nil || !auth.CheckPasswordHash(input.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, expiry, err := h.JWT.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expiry": expiry,
		"user":   models.NewUserResponse(user),
	})
}

// Logout marks the caller offline and closes their live connections
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	closed := h.Sessions.Logout(c.Request.Context(), userID)
	log.Info("User %s logged out, %d connections closed", username, closed)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out", "connections": closed})
}

// GetMe gets the current user profile
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	h.respondWithUser(c, userID)
}

// GetUser returns one user by id
func (h *AuthHandler) GetUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	h.respondWithUser(c, userID)
}

func (h *AuthHandler) respondWithUser(c *gin.Context, userID uuid.UUID) {
	user, err := h.Store.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		storageError(c, "Failed to retrieve user", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, models.NewUserResponse(user))
}

// GetAllUsers returns the roster
func (h *AuthHandler) GetAllUsers(c *gin.Context) {
	users, err := h.Store.ListUsers(c.Request.Context())
	if err != nil {
		storageError(c, "Failed to retrieve users", err)
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}
	c.JSON(http.StatusOK, users)
}

// storageError answers 503 when the backend is unreachable and 500 otherwise
func storageError(c *gin.Context, message string, err error) {
	log.Error("%s: %v", message, err)
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": message})
}
