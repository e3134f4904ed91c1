package chat

import (
	"errors"

	"github.com/ammar1510/chathub/internal/storage"
)

var (
	// ErrAuthenticationFailed means a join presented a bad or unknown credential
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrNotAuthenticated means the connection has not joined yet
	ErrNotAuthenticated = errors.New("user not authenticated")

	// ErrValidation is the parent of every payload rejection
	ErrValidation       = errors.New("validation failed")
	ErrEmptyMessage     = validationError("message text is required")
	ErrMessageTooLong   = validationError("message is too long")
	ErrUnknownRecipient = validationError("unknown recipient")
	ErrInvalidPayload   = validationError("invalid message format")
	ErrUnknownEvent     = validationError("unknown message type")

	// ErrRateLimited is reported when a connection sends too fast
	ErrRateLimited = errors.New("rate limit exceeded")
)

type validation struct {
	msg string
}

func (v *validation) Error() string { return v.msg }

func (v *validation) Is(target error) bool { return target == ErrValidation }

func validationError(msg string) error {
	return &validation{msg: msg}
}

// ErrorReason maps an error to the text sent in an error event
func ErrorReason(err error) string {
	var v *validation
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "Authentication failed"
	case errors.Is(err, ErrNotAuthenticated):
		return "User not authenticated"
	case errors.As(err, &v):
		return v.msg
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded"
	case errors.Is(err, storage.ErrUnavailable):
		return "Failed to send message"
	default:
		return "Internal error"
	}
}
