package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ModeSigned = "signed"

// Signed issues HS256 JWTs. Nothing is stored, so tokens cannot be revoked
// before they expire.
type Signed struct {
	secret []byte
	ttl    time.Duration
	users  UserLookup
	now    func() time.Time
}

// NewSigned creates a signed issuer. ttl bounds every token's lifetime.
func NewSigned(secret []byte, ttl time.Duration, users UserLookup) *Signed {
	return &Signed{secret: secret, ttl: ttl, users: users, now: time.Now}
}

func (s *Signed) Issue(ctx context.Context, userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

func (s *Signed) Resolve(ctx context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", ErrInvalidToken
	case claims.Subject == "":
		return "", ErrInvalidToken
	}

	ok, err := s.users.Exists(ctx, claims.Subject)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUserNotFound
	}
	return claims.Subject, nil
}

func (s *Signed) Revoke(ctx context.Context, token string) (bool, error) { return false, nil }

func (s *Signed) RevokeAll(ctx context.Context, userID string) (int64, error) { return 0, nil }

func (s *Signed) Revocable() bool { return false }

func (s *Signed) Mode() string { return ModeSigned }
