// Package auth composes code verification, the user directory and token
// issuance into the login flow used by the HTTP layer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alecgard/taskhub/internal/apperr"
	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/session"
	"github.com/alecgard/taskhub/internal/user"
	"github.com/alecgard/taskhub/internal/verify"
)

// CodeService issues and checks one-time codes.
type CodeService interface {
	Request(ctx context.Context, ch notify.Channel, value string) (*verify.Issued, error)
	Verify(ctx context.Context, ch notify.Channel, value, code string) (string, error)
	LiveCount(ctx context.Context) (int64, error)
}

// Directory finds, creates and updates users.
type Directory interface {
	GetOrCreate(ctx context.Context, ch notify.Channel, target string) (*user.User, bool, error)
	Get(ctx context.Context, id string) (*user.User, error)
	UpdateUsername(ctx context.Context, id, name string) (*user.User, error)
	Count(ctx context.Context) (int64, error)
}

// Recorder is an optional interface for recording authentication metrics.
type Recorder interface {
	IncAuthFailure(reason string)
	IncAuthSuccess(tokenMode string)
}

// sessionCounter is implemented by issuers that keep server-side state.
type sessionCounter interface {
	Active(ctx context.Context) (int64, error)
}

// CodeRequest is the response to a code request. Code and Debug are set only
// when the notifier could not deliver the code.
type CodeRequest struct {
	Message          string `json:"message"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	ChannelValue     string `json:"channelValue"`
	Code             string `json:"code,omitempty"`
	Debug            bool   `json:"debug,omitempty"`
}

// Token is the response to a successful verification.
type Token struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	UserID      string `json:"userId"`
}

// LogoutResult reports what a logout invalidated. Revoked is always false
// for signed tokens, which stay valid until they expire.
type LogoutResult struct {
	Revoked  bool   `json:"revoked"`
	Sessions int64  `json:"sessions"`
	Message  string `json:"message,omitempty"`
}

// Stats summarizes the authentication subsystem.
type Stats struct {
	TotalUsers     int64  `json:"totalUsers"`
	LiveCodes      int64  `json:"liveCodes"`
	ActiveSessions *int64 `json:"activeSessions,omitempty"`
	TokenMode      string `json:"tokenMode"`
}

const statelessLogoutMessage = "signed tokens cannot be revoked; discard the token on the client"

// Service is the entry point for login, logout and identity resolution.
type Service struct {
	codes   CodeService
	users   Directory
	tokens  session.Issuer
	metrics Recorder
}

// NewService creates a new authentication service.
func NewService(codes CodeService, users Directory, tokens session.Issuer) *Service {
	return &Service{codes: codes, users: users, tokens: tokens}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m Recorder) {
	s.metrics = m
}

// TokenMode reports the active token mode.
func (s *Service) TokenMode() string {
	return s.tokens.Mode()
}

// RequestCode issues a code for the address. A failed delivery does not
// fail the request; the code is returned in the response instead.
func (s *Service) RequestCode(ctx context.Context, ch notify.Channel, value string) (*CodeRequest, error) {
	issued, err := s.codes.Request(ctx, ch, value)
	if err != nil {
		return nil, err
	}

	resp := &CodeRequest{
		ExpiresInSeconds: int(issued.ExpiresIn.Seconds()),
		ChannelValue:     issued.Target,
	}
	if issued.Delivered {
		resp.Message = fmt.Sprintf("verification code sent by %s", deliveryNoun(ch))
		return resp, nil
	}

	slog.Warn("code delivery failed, returning code in response", "channel", ch)
	resp.Message = fmt.Sprintf("%s delivery is unavailable; use the code below", deliveryNoun(ch))
	resp.Code = issued.Code
	resp.Debug = true
	return resp, nil
}

func deliveryNoun(ch notify.Channel) string {
	if ch == notify.ChannelPhone {
		return "SMS"
	}
	return "email"
}

// VerifyCode checks the code, finds or creates the user and issues a token.
func (s *Service) VerifyCode(ctx context.Context, ch notify.Channel, value, code string) (*Token, error) {
	target, err := s.codes.Verify(ctx, ch, value, code)
	if err != nil {
		return nil, err
	}

	u, created, err := s.users.GetOrCreate(ctx, ch, target)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	token, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncAuthSuccess(s.tokens.Mode())
	}
	slog.Info("login", "user_id", u.ID, "channel", ch, "new_user", created)

	return &Token{AccessToken: token, TokenType: "bearer", UserID: u.ID}, nil
}

// Authenticate resolves a bearer token to its user. Every failure is an
// Unauthorized error with the same message.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		s.countFailure("missing")
		return nil, session.ErrInvalidToken
	}

	userID, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		s.countFailureErr(err)
		return nil, err
	}

	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, user.ErrUserNotFound) {
		s.countFailure("user_not_found")
		return nil, session.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) countFailureErr(err error) {
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindUnauthorized {
		s.countFailure(e.Code)
	}
}

func (s *Service) countFailure(reason string) {
	if s.metrics != nil {
		s.metrics.IncAuthFailure(reason)
	}
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) (*LogoutResult, error) {
	if !s.tokens.Revocable() {
		return &LogoutResult{Message: statelessLogoutMessage}, nil
	}
	ok, err := s.tokens.Revoke(ctx, token)
	if err != nil {
		return nil, err
	}
	res := &LogoutResult{Revoked: ok}
	if ok {
		res.Sessions = 1
	}
	return res, nil
}

// LogoutAll revokes every token of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) (*LogoutResult, error) {
	if !s.tokens.Revocable() {
		return &LogoutResult{Message: statelessLogoutMessage}, nil
	}
	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("logout all", "user_id", userID, "sessions", n)
	return &LogoutResult{Revoked: n > 0, Sessions: n}, nil
}

// CurrentUser returns the user with the given id.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*user.User, error) {
	return s.users.Get(ctx, userID)
}

// UpdateUsername changes the caller's username.
func (s *Service) UpdateUsername(ctx context.Context, userID, name string) (*user.User, error) {
	old, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.UpdateUsername(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	slog.Info("username changed", "user_id", userID, "old", old.Username, "new", u.Username)
	return u, nil
}

// Stats returns user, code and session counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	codes, err := s.codes.LiveCount(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{TotalUsers: users, LiveCodes: codes, TokenMode: s.tokens.Mode()}
	if c, ok := s.tokens.(sessionCounter); ok {
		n, err := c.Active(ctx)
		if err != nil {
			return nil, err
		}
		st.ActiveSessions = &n
	}
	return st, nil
}
