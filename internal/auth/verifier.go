package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/models"
	"github.com/ammar1510/chathub/internal/session"
)

// UserFinder is the slice of storage the verifier needs
type UserFinder interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenVerifier turns a token into a verified identity. The signature is
// checked and the user must still exist; the username comes from storage,
// not from the token.
type TokenVerifier struct {
	jwt   *JWT
	users UserFinder
}

// NewTokenVerifier creates a verifier backed by users
func NewTokenVerifier(j *JWT, users UserFinder) *TokenVerifier {
	return &TokenVerifier{jwt: j, users: users}
}

// Verify returns the identity behind token or an error wrapping ErrInvalidToken
func (v *TokenVerifier) Verify(ctx context.Context, token string) (session.Identity, error) {
	claims, err := v.jwt.ValidateToken(token)
	if err != nil {
		return session.Identity{}, err
	}

	userID, err := GetUserIDFromToken(claims)
	if err != nil {
		return session.Identity{}, fmt.Errorf("%w: malformed user id", ErrInvalidToken)
	}

	user, err := v.users.FindUserByID(ctx, userID)
	if err != nil {
		return session.Identity{}, fmt.Errorf("look up user %s: %w", userID, err)
	}
	if user == nil {
		return session.Identity{}, fmt.Errorf("%w: unknown user %s", ErrInvalidToken, userID)
	}

	return session.Identity{UserID: user.ID, Username: user.Username}, nil
}
