// Package session issues and resolves the bearer tokens handed out after a
// successful code verification. Two implementations exist: opaque tokens
// backed by a sessions table, and self-contained signed JWTs. A deployment
// uses exactly one of them.
package session

import (
	"context"

	"github.com/alecgard/taskhub/internal/apperr"
)

// Issuer manages bearer tokens for users.
type Issuer interface {
	// Issue creates a new token for the user.
	Issue(ctx context.Context, userID string) (string, error)
	// Resolve returns the id of the user the token belongs to.
	Resolve(ctx context.Context, token string) (string, error)
	// Revoke invalidates a single token. It reports whether anything was
	// revoked.
	Revoke(ctx context.Context, token string) (bool, error)
	// RevokeAll invalidates every token of the user and returns how many
	// were removed.
	RevokeAll(ctx context.Context, userID string) (int64, error)
	// Revocable reports whether Revoke and RevokeAll have any effect.
	Revocable() bool
	// Mode names the token mode, for logs and metrics.
	Mode() string
}

// UserLookup reports whether a user still exists.
type UserLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

const unauthorizedMessage = "invalid or expired token"

// All resolution failures share one message so callers cannot tell them apart.
var (
	ErrInvalidToken = apperr.Unauthorized("invalid_token", unauthorizedMessage)
	ErrTokenExpired = apperr.Unauthorized("token_expired", unauthorizedMessage)
	ErrUserNotFound = apperr.Unauthorized("user_not_found", unauthorizedMessage)
)
