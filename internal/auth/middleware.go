package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alecgard/taskhub/internal/apperr"
	"github.com/alecgard/taskhub/internal/user"
)

type contextKey int

const (
	userContextKey contextKey = iota
	tokenContextKey
)

// Authenticator resolves bearer tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

// ContextWithUser returns a new context carrying the given user.
func ContextWithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext extracts the user from the context, or nil if not present.
func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userContextKey).(*user.User)
	return u
}

// ContextWithToken returns a new context carrying the raw bearer token.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext extracts the bearer token from the context.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}

// Middleware authenticates the bearer token and injects the user and token
// into the request context. Identity is only ever taken from the token.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			u, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if e, ok := apperr.As(err); ok && e.Kind == apperr.KindUnauthorized {
					writeUnauthorized(w, e.Message)
					return
				}
				slog.Error("authenticating request", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}

			ctx := ContextWithUser(r.Context(), u)
			ctx = ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{Code: code, Message: message},
	})
}
