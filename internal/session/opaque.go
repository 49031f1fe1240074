package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// TokenPrefix marks opaque tokens so they are recognizable in logs and
	// secret scanners.
	TokenPrefix = "thk_"
	tokenBytes  = 32

	ModeOpaque = "opaque"
)

// Opaque issues random tokens and stores only their SHA-256 hash. Tokens do
// not expire; they live until revoked or until the user is deleted.
type Opaque struct {
	store Store
	users UserLookup
}

// NewOpaque creates an opaque issuer.
func NewOpaque(store Store, users UserLookup) *Opaque {
	return &Opaque{store: store, users: users}
}

// GenerateToken returns a fresh plaintext token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex-encoded SHA-256 of a plaintext token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func (o *Opaque) Issue(ctx context.Context, userID string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	if err := o.store.Create(ctx, HashToken(token), userID); err != nil {
		return "", err
	}
	return token, nil
}

func (o *Opaque) Resolve(ctx context.Context, token string) (string, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", ErrInvalidToken
	}
	hash := HashToken(token)

	userID, err := o.store.UserID(ctx, hash)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", ErrInvalidToken
	}

	ok, err := o.users.Exists(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		if _, err := o.store.Delete(ctx, hash); err != nil {
			slog.Warn("purging orphaned session", "error", err)
		}
		return "", ErrUserNotFound
	}
	return userID, nil
}

func (o *Opaque) Revoke(ctx context.Context, token string) (bool, error) {
	return o.store.Delete(ctx, HashToken(token))
}

func (o *Opaque) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return o.store.DeleteForUser(ctx, userID)
}

func (o *Opaque) Revocable() bool { return true }

func (o *Opaque) Mode() string { return ModeOpaque }

// Active returns the number of stored sessions.
func (o *Opaque) Active(ctx context.Context) (int64, error) {
	return o.store.Count(ctx)
}
