package verify

import (
	"time"

	"github.com/alecgard/taskhub/internal/apperr"
	"github.com/alecgard/taskhub/internal/notify"
)

// Channel is the address kind a code is issued for.
type Channel = notify.Channel

// Code is a stored one-time verification code. Only the hash of the code is
// persisted.
type Code struct {
	ID        string
	Channel   Channel
	Target    string
	CodeHash  string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the code has not yet expired at now.
func (c *Code) Live(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Issued is the result of a code request.
type Issued struct {
	Channel   Channel
	Target    string
	Code      string
	ExpiresIn time.Duration
	// Delivered is false when the notifier could not send the code. Callers
	// fall back to returning Code to the client in that case.
	Delivered bool
}

var (
	ErrInvalidChannel = apperr.Validation("invalid_channel", "channel", "channel must be phone or email")
	ErrInvalidPhone   = apperr.Validation("invalid_phone", "value", "invalid phone number")
	ErrInvalidEmail   = apperr.Validation("invalid_email", "value", "invalid email address")
	ErrMalformedCode  = apperr.Validation("malformed_code", "code", "code must be 6 digits")

	ErrRateLimited     = apperr.New(apperr.KindRateLimited, "code_rate_limited", "a code was sent recently; wait before requesting another")
	ErrCodeNotFound    = apperr.NotFound("code_not_found", "no active code for this address; request a new one")
	ErrCodeExpired     = apperr.New(apperr.KindExpired, "code_expired", "code has expired; request a new one")
	ErrTooManyAttempts = apperr.New(apperr.KindTooManyAttempts, "too_many_attempts", "too many wrong attempts; request a new code")
	ErrInvalidCode     = apperr.New(apperr.KindInvalidCode, "invalid_code", "incorrect code")
)
