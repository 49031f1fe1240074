package user

import (
	"time"

	"github.com/alecgard/taskhub/internal/apperr"
)

// User represents a registered account. At least one of Phone and Email is set.
type User struct {
	ID        string    `json:"id"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrUserNotFound    = apperr.NotFound("user_not_found", "user not found")
	ErrInvalidUsername = apperr.Validation("invalid_username", "username",
		"username must be 3-30 letters, digits, underscores or hyphens and not only digits")
	ErrUsernameTaken = apperr.Conflict("username_taken", "username", "username is already taken")
)
